package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/store/dynamodb"
	"github.com/nimburion/storefront/pkg/store/mongodb"
)

// DocumentStore is a document store that also owns its connection.
type DocumentStore interface {
	document.Store
	Adapter
}

type managedStore struct {
	document.Store
	Adapter
}

// Cosa fa: seleziona il backend documentale (memory, mongodb, dynamodb) in base alla config
// e lo avvolge con health check e chiusura della connessione.
// Cosa NON fa: non crea indici o tabelle; per quello serve InitDocumentStore.
// Esempio minimo: st, err := store.NewDocumentStore(cfg.Database, catalog.OrderFields(), log)
func NewDocumentStore(cfg config.DatabaseConfig, orderFields map[document.Collection][]string, log logger.Logger) (DocumentStore, error) {
	log = logger.OrNop(log)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMemory, "":
		log.Warn("using in-memory document store, data is lost on restart")
		return document.NewMemoryStore(), nil
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		st, err := document.NewMongoStore(adapter)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return managedStore{Store: st, Adapter: adapter}, nil
	case config.DatabaseTypeDynamoDB:
		adapter, err := dynamodb.NewAdapter(dynamoConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		st, err := document.NewDynamoStore(adapter, document.DynamoConfig{
			Table:       cfg.Table,
			OrderFields: flatten(orderFields),
		})
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return managedStore{Store: st, Adapter: adapter}, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: memory, mongodb, dynamodb)", cfg.Type)
	}
}

// InitDocumentStore creates the indexes (MongoDB) or the table with its order
// indexes (DynamoDB) the catalog needs. Running it twice is harmless.
func InitDocumentStore(ctx context.Context, cfg config.DatabaseConfig, orderFields map[document.Collection][]string, log logger.Logger) error {
	log = logger.OrNop(log)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMemory, "":
		log.Info("memory store needs no initialization")
		return nil
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
		if err != nil {
			return err
		}
		defer adapter.Close()
		st, err := document.NewMongoStore(adapter)
		if err != nil {
			return err
		}
		if err := st.EnsureIndexes(ctx, orderFields); err != nil {
			return err
		}
		log.Info("mongodb indexes ensured", "database", cfg.DatabaseName)
		return nil
	case config.DatabaseTypeDynamoDB:
		adapter, err := dynamodb.NewAdapter(dynamoConfig(cfg), log)
		if err != nil {
			return err
		}
		defer adapter.Close()
		def := document.DynamoTableDefinition(document.DynamoConfig{
			Table:       cfg.Table,
			OrderFields: flatten(orderFields),
		})
		if err := adapter.CreateTable(ctx, def); err != nil {
			return fmt.Errorf("create table %s: %w", cfg.Table, err)
		}
		log.Info("dynamodb table ready", "table", cfg.Table)
		return nil
	default:
		return fmt.Errorf("unsupported database.type %q (supported: memory, mongodb, dynamodb)", cfg.Type)
	}
}

func dynamoConfig(cfg config.DatabaseConfig) dynamodb.Config {
	return dynamodb.Config{
		Region:           cfg.Region,
		Endpoint:         cfg.Endpoint,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		SessionToken:     cfg.SessionToken,
		OperationTimeout: cfg.QueryTimeout,
	}
}

func flatten(orderFields map[document.Collection][]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range document.Collections() {
		for _, f := range orderFields[c] {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
