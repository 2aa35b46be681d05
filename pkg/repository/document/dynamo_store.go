package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	dynamostore "github.com/nimburion/storefront/pkg/store/dynamodb"
)

const (
	dynamoIDAttr   = "id"
	dynamoKindAttr = "_kind"
	dynamoOrdAttr  = "_ord_"

	// maxTransactItems is the DynamoDB limit for TransactWriteItems.
	maxTransactItems = 100
)

// DynamoExecutor is the subset of the DynamoDB adapter used by DynamoStore.
type DynamoExecutor interface {
	PutItem(ctx context.Context, input *awsdynamodb.PutItemInput) (*awsdynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *awsdynamodb.GetItemInput) (*awsdynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, input *awsdynamodb.UpdateItemInput) (*awsdynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, input *awsdynamodb.DeleteItemInput) (*awsdynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, input *awsdynamodb.QueryInput) (*awsdynamodb.QueryOutput, error)
	Scan(ctx context.Context, input *awsdynamodb.ScanInput) (*awsdynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, input *awsdynamodb.TransactWriteItemsInput) (*awsdynamodb.TransactWriteItemsOutput, error)
}

var _ DynamoExecutor = (*dynamostore.Adapter)(nil)

// DynamoConfig describes the single table every collection shares.
type DynamoConfig struct {
	Table string
	// OrderFields are the fields ordered queries may use. Each one needs a
	// global secondary index named OrderIndexName(field).
	OrderFields []string
}

// DynamoStore implements Store on one DynamoDB table. Items carry their
// collection in _kind; each order field f is mirrored into _ord_f so a global
// secondary index on (_kind, _ord_f) serves ordered ranges with id tie breaks.
type DynamoStore struct {
	exec        DynamoExecutor
	table       string
	orderFields map[string]bool
	newID       func() string
}

// NewDynamoStore creates a new DynamoStore instance.
func NewDynamoStore(exec DynamoExecutor, cfg DynamoConfig) (*DynamoStore, error) {
	if exec == nil {
		return nil, errors.New("dynamodb executor is required")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errors.New("dynamodb table is required")
	}
	fields := make(map[string]bool, len(cfg.OrderFields))
	for _, f := range cfg.OrderFields {
		fields[f] = true
	}
	return &DynamoStore{exec: exec, table: cfg.Table, orderFields: fields, newID: uuid.NewString}, nil
}

// OrderIndexName names the global secondary index ordering by field.
func OrderIndexName(field string) string {
	return "ord-" + field
}

// DynamoTableDefinition returns the CreateTable input matching cfg.
func DynamoTableDefinition(cfg DynamoConfig) *awsdynamodb.CreateTableInput {
	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String(dynamoIDAttr), AttributeType: types.ScalarAttributeTypeS},
		{AttributeName: aws.String(dynamoKindAttr), AttributeType: types.ScalarAttributeTypeS},
	}
	var indexes []types.GlobalSecondaryIndex
	for _, f := range cfg.OrderFields {
		attrs = append(attrs, types.AttributeDefinition{AttributeName: aws.String(dynamoOrdAttr + f), AttributeType: types.ScalarAttributeTypeS})
		indexes = append(indexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(OrderIndexName(f)),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(dynamoKindAttr), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(dynamoOrdAttr + f), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	return &awsdynamodb.CreateTableInput{
		TableName:              aws.String(cfg.Table),
		AttributeDefinitions:   attrs,
		KeySchema:              []types.KeySchemaElement{{AttributeName: aws.String(dynamoIDAttr), KeyType: types.KeyTypeHash}},
		GlobalSecondaryIndexes: indexes,
		BillingMode:            types.BillingModePayPerRequest,
	}
}

func reservedField(name string) bool {
	return name == dynamoIDAttr || strings.HasPrefix(name, "_")
}

func (s *DynamoStore) Create(ctx context.Context, c Collection, fields Fields) (string, error) {
	const op = "dynamodb create"
	id := s.newID()
	item := map[string]types.AttributeValue{
		dynamoIDAttr:   &types.AttributeValueMemberS{Value: id},
		dynamoKindAttr: &types.AttributeValueMemberS{Value: string(c)},
	}
	for k, v := range fields {
		if reservedField(k) {
			return "", Errorf(InvalidArgument, op, "field name %q is reserved", k)
		}
		av, err := toAttributeValue(v)
		if err != nil {
			return "", Wrap(InvalidArgument, op, fmt.Errorf("field %s: %w", k, err))
		}
		item[k] = av
		if s.orderFields[k] {
			if key, ok := ordKey(v, id); ok {
				item[dynamoOrdAttr+k] = &types.AttributeValueMemberS{Value: key}
			}
		}
	}
	_, err := s.exec.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName:                &s.table,
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": dynamoIDAttr},
	})
	if err != nil {
		if dynamostore.IsConditionFailed(err) {
			return "", Errorf(Conflict, op, "id %s already exists", id)
		}
		return "", dynamoError(op, err)
	}
	return id, nil
}

func (s *DynamoStore) Get(ctx context.Context, c Collection, id string) (Record, error) {
	const op = "dynamodb get"
	out, err := s.exec.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Record{}, dynamoError(op, err)
	}
	rec, kind := fromItem(out.Item)
	if out.Item == nil || kind != string(c) {
		return Record{}, Errorf(NotFound, op, "%s/%s not found", c, id)
	}
	return rec, nil
}

func (s *DynamoStore) Merge(ctx context.Context, c Collection, id string, fields Fields) error {
	const op = "dynamodb merge"
	if len(fields) == 0 {
		_, err := s.Get(ctx, c, id)
		return err
	}
	input, err := s.updateInput(c, id, fields)
	if err != nil {
		return Wrap(InvalidArgument, op, err)
	}
	if _, err := s.exec.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
		TableName:                 input.TableName,
		Key:                       input.Key,
		UpdateExpression:          input.UpdateExpression,
		ConditionExpression:       input.ConditionExpression,
		ExpressionAttributeNames:  input.ExpressionAttributeNames,
		ExpressionAttributeValues: input.ExpressionAttributeValues,
	}); err != nil {
		if dynamostore.IsConditionFailed(err) {
			return Errorf(NotFound, op, "%s/%s not found", c, id)
		}
		return dynamoError(op, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, c Collection, id string) error {
	const op = "dynamodb delete"
	_, err := s.exec.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName:                 &s.table,
		Key:                       s.key(id),
		ConditionExpression:       aws.String("attribute_exists(#id) AND #kind = :kind"),
		ExpressionAttributeNames:  map[string]string{"#id": dynamoIDAttr, "#kind": dynamoKindAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":kind": &types.AttributeValueMemberS{Value: string(c)}},
	})
	if err != nil {
		if dynamostore.IsConditionFailed(err) {
			return Errorf(NotFound, op, "%s/%s not found", c, id)
		}
		return dynamoError(op, err)
	}
	return nil
}

// Find serves ordered queries from the order index of q.OrderBy and unordered
// ones from a filtered scan. Filters are applied after the key range, so pages
// are read until the limit is met.
func (s *DynamoStore) Find(ctx context.Context, c Collection, q Query) ([]Record, error) {
	const op = "dynamodb find"
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.OrderBy != "" && !s.orderFields[q.OrderBy] {
		return nil, Errorf(InvalidArgument, op, "field %q has no order index", q.OrderBy)
	}

	expr := newExprBuilder()
	kindPH := expr.value(&types.AttributeValueMemberS{Value: string(c)})
	filter, err := expr.conditions(q.Where)
	if err != nil {
		return nil, Wrap(InvalidArgument, op, err)
	}

	var scanFilter, keyCond string
	if q.OrderBy == "" {
		scanFilter = expr.name(dynamoKindAttr) + " = " + kindPH
		if filter != "" {
			scanFilter += " AND " + filter
		}
	} else {
		keyCond, err = s.rangeCondition(expr, kindPH, q)
		if err != nil {
			return nil, Wrap(InvalidArgument, op, err)
		}
	}

	var records []Record
	var startKey map[string]types.AttributeValue
	for {
		var items []map[string]types.AttributeValue
		if q.OrderBy == "" {
			out, err := s.exec.Scan(ctx, &awsdynamodb.ScanInput{
				TableName:                 &s.table,
				FilterExpression:          aws.String(scanFilter),
				ExpressionAttributeNames:  expr.names,
				ExpressionAttributeValues: expr.values,
				ExclusiveStartKey:         startKey,
			})
			if err != nil {
				return nil, dynamoError(op, err)
			}
			items, startKey = out.Items, out.LastEvaluatedKey
		} else {
			input := &awsdynamodb.QueryInput{
				TableName:                 &s.table,
				IndexName:                 aws.String(OrderIndexName(q.OrderBy)),
				KeyConditionExpression:    aws.String(keyCond),
				ExpressionAttributeNames:  expr.names,
				ExpressionAttributeValues: expr.values,
				ScanIndexForward:          aws.Bool(!q.LimitToLast),
				ExclusiveStartKey:         startKey,
			}
			if filter != "" {
				input.FilterExpression = aws.String(filter)
			} else if q.Limit > 0 {
				input.Limit = aws.Int32(int32(q.Limit))
			}
			out, err := s.exec.Query(ctx, input)
			if err != nil {
				return nil, dynamoError(op, err)
			}
			items, startKey = out.Items, out.LastEvaluatedKey
		}

		for _, item := range items {
			rec, _ := fromItem(item)
			records = append(records, rec)
			if q.Limit > 0 && len(records) == q.Limit {
				startKey = nil
				break
			}
		}
		if len(startKey) == 0 {
			break
		}
	}

	if q.LimitToLast {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *DynamoStore) rangeCondition(expr *exprBuilder, kindPH string, q Query) (string, error) {
	cond := expr.name(dynamoKindAttr) + " = " + kindPH
	ordName := expr.name(dynamoOrdAttr + q.OrderBy)
	boundary := func(b *Boundary) (string, error) {
		key, ok := ordKey(b.Value, b.ID)
		if !ok {
			return "", fmt.Errorf("boundary value of type %T cannot be ordered", b.Value)
		}
		return expr.value(&types.AttributeValueMemberS{Value: key}), nil
	}
	switch {
	case q.StartAt != nil && q.EndAt != nil:
		lo, err := boundary(q.StartAt)
		if err != nil {
			return "", err
		}
		hi, err := boundary(q.EndAt)
		if err != nil {
			return "", err
		}
		cond += " AND " + ordName + " BETWEEN " + lo + " AND " + hi
	case q.StartAt != nil:
		lo, err := boundary(q.StartAt)
		if err != nil {
			return "", err
		}
		cond += " AND " + ordName + " >= " + lo
	case q.EndAt != nil:
		hi, err := boundary(q.EndAt)
		if err != nil {
			return "", err
		}
		cond += " AND " + ordName + " <= " + hi
	}
	return cond, nil
}

// Commit writes the batch with TransactWriteItems. Every target must exist in
// its collection or the whole transaction is cancelled.
func (s *DynamoStore) Commit(ctx context.Context, b *Batch) error {
	const op = "dynamodb commit"
	if b.Len() == 0 {
		return nil
	}
	if b.Len() > maxTransactItems {
		return Errorf(InvalidArgument, op, "batch of %d exceeds %d items", b.Len(), maxTransactItems)
	}
	items := make([]types.TransactWriteItem, 0, b.Len())
	for _, u := range b.Updates() {
		update, err := s.updateInput(u.Collection, u.ID, u.Fields)
		if err != nil {
			return Wrap(InvalidArgument, op, err)
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}
	_, err := s.exec.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			for i, reason := range cancelled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" && i < b.Len() {
					u := b.Updates()[i]
					return Errorf(NotFound, op, "%s/%s not found", u.Collection, u.ID)
				}
			}
		}
		return dynamoError(op, err)
	}
	return nil
}

func (s *DynamoStore) updateInput(c Collection, id string, fields Fields) (*types.Update, error) {
	expr := newExprBuilder()
	sets := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if reservedField(k) {
			return nil, fmt.Errorf("field name %q is reserved", k)
		}
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		sets = append(sets, expr.name(k)+" = "+expr.value(av))
		if s.orderFields[k] {
			if key, ok := ordKey(v, id); ok {
				sets = append(sets, expr.name(dynamoOrdAttr+k)+" = "+expr.value(&types.AttributeValueMemberS{Value: key}))
			}
		}
	}
	cond := "attribute_exists(" + expr.name(dynamoIDAttr) + ") AND " + expr.name(dynamoKindAttr) + " = " +
		expr.value(&types.AttributeValueMemberS{Value: string(c)})
	return &types.Update{
		TableName:                 &s.table,
		Key:                       s.key(id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	}, nil
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{dynamoIDAttr: &types.AttributeValueMemberS{Value: id}}
}

func fromItem(item map[string]types.AttributeValue) (Record, string) {
	rec := Record{Fields: make(Fields, len(item))}
	var kind string
	for k, av := range item {
		switch {
		case k == dynamoIDAttr:
			rec.ID, _ = fromAttributeValue(av).(string)
		case k == dynamoKindAttr:
			kind, _ = fromAttributeValue(av).(string)
		case strings.HasPrefix(k, dynamoOrdAttr):
		default:
			rec.Fields[k] = fromAttributeValue(av)
		}
	}
	return rec, kind
}

type exprBuilder struct {
	names   map[string]string
	values  map[string]types.AttributeValue
	byField map[string]string
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:   map[string]string{},
		values:  map[string]types.AttributeValue{},
		byField: map[string]string{},
	}
}

func (b *exprBuilder) name(field string) string {
	if ph, ok := b.byField[field]; ok {
		return ph
	}
	ph := fmt.Sprintf("#n%d", len(b.byField))
	b.byField[field] = ph
	b.names[ph] = field
	return ph
}

func (b *exprBuilder) value(av types.AttributeValue) string {
	ph := fmt.Sprintf(":v%d", len(b.values))
	b.values[ph] = av
	return ph
}

func (b *exprBuilder) conditions(conds []Condition) (string, error) {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		av, err := toAttributeValue(c.Value)
		if err != nil {
			return "", fmt.Errorf("condition on %s: %w", c.Field, err)
		}
		switch c.Op {
		case OpEqual:
			parts = append(parts, b.name(c.Field)+" = "+b.value(av))
		case OpArrayContains:
			parts = append(parts, "contains("+b.name(c.Field)+", "+b.value(av)+")")
		}
	}
	return strings.Join(parts, " AND "), nil
}

func dynamoError(op string, err error) error {
	if isUnavailable(err) || dynamostore.IsThrottlingError(err) {
		return Wrap(BackendUnavailable, op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultServer {
		return Wrap(BackendUnavailable, op, err)
	}
	return Wrap(Internal, op, err)
}
