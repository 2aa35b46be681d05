// Package configschema generates the JSON Schema of the storefront
// configuration file, with defaults, accepted values and secret keys marked.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimburion/storefront/pkg/config"
)

// enums lists the accepted values of the keys that take one of a fixed set.
var enums = map[string][]any{
	"router_type":              {config.RouterTypeGin, config.RouterTypeGorilla},
	"database.type":            {config.DatabaseTypeMemory, config.DatabaseTypeMongoDB, config.DatabaseTypeDynamoDB},
	"eventbus.type":            {config.EventBusTypeNone, config.EventBusTypeKafka, config.EventBusTypeRabbitMQ, config.EventBusTypeSQS},
	"observability.log_level":  {"debug", "info", "warn", "error"},
	"observability.log_format": {"json", "text", "console"},
	"eventbus.exchange_type":   {"topic", "direct", "fanout", "headers"},
}

// secretKeys belong in the secrets file, never in the main config.
var secretKeys = map[string]bool{
	"auth.secret":                true,
	"database.url":               true,
	"database.secret_access_key": true,
	"database.session_token":     true,
	"eventbus.url":               true,
	"eventbus.secret_access_key": true,
	"eventbus.session_token":     true,
}

// BuildSchema returns the schema of config.Config with the values of
// defaults injected as schema defaults. A nil defaults uses
// config.DefaultConfig.
func BuildSchema(defaults *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string"},
		},
	}
	cfgType := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(cfgType, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyFieldNames(schema, cfgType)

	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequiredWithDefaults(schema)
	annotate(schema, "")

	name := strings.TrimSpace(defaults.Service.Name)
	if name == "" {
		name = "Service"
	}
	schema.Title = name + " Configuration"
	schema.Description = "Schema for " + name + " configuration."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// Marshal renders the schema as indented JSON.
func Marshal(schema *jsonschema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config schema: %w", err)
	}
	return append(data, '\n'), nil
}

func annotate(schema *jsonschema.Schema, prefix string) {
	for name, prop := range schema.Properties {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if values := enums[key]; len(values) > 0 {
			prop.Enum = values
		}
		if secretKeys[key] {
			prop.WriteOnly = true
			prop.Description = "Secret; set it in the secrets file or the environment."
		}
		annotate(prop, key)
	}
}

// applyFieldNames renames properties from Go field names to the
// mapstructure keys the loader reads.
func applyFieldNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		if len(schema.Properties) == 0 {
			return
		}
		nameMap := make(map[string]string)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			jsonName := jsonFieldName(field)
			if jsonName == "" {
				continue
			}
			desired := fieldKeyName(field)
			nameMap[jsonName] = desired
			if prop, ok := schema.Properties[jsonName]; ok {
				delete(schema.Properties, jsonName)
				schema.Properties[desired] = prop
				applyFieldNames(prop, field.Type)
			}
		}
		schema.Required = renameAll(schema.Required, nameMap)
		schema.PropertyOrder = renameAll(schema.PropertyOrder, nameMap)

	case reflect.Slice, reflect.Array:
		applyFieldNames(schema.Items, t.Elem())

	case reflect.Map:
		applyFieldNames(schema.AdditionalProperties, t.Elem())
	}
}

func renameAll(names []string, nameMap map[string]string) []string {
	if len(names) == 0 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if mapped, ok := nameMap[name]; ok {
			name = mapped
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			if raw, ok := marshalDefault(schema, value); ok {
				schema.Default = raw
			}
		}
		return
	}

	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		prop, ok := schema.Properties[fieldKeyName(field)]
		if !ok {
			continue
		}
		injectDefaults(prop, value.Field(i))
	}
}

func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
	if len(schema.Required) == 0 {
		return
	}
	kept := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop == nil || (prop.Default == nil && len(prop.Properties) == 0) {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
}

func marshalDefault(schema *jsonschema.Schema, value reflect.Value) (json.RawMessage, bool) {
	if value.Kind() == reflect.Map && value.IsNil() {
		return nil, false
	}
	if value.Kind() == reflect.Slice && value.IsNil() {
		return nil, false
	}
	v := value.Interface()
	if d, ok := v.(time.Duration); ok && schemaAllowsString(schema) {
		v = d.String()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func schemaAllowsString(schema *jsonschema.Schema) bool {
	if schema.Type == "string" {
		return true
	}
	for _, t := range schema.Types {
		if t == "string" {
			return true
		}
	}
	return false
}

func fieldKeyName(field reflect.StructField) string {
	if tag, ok := tagName(field.Tag.Get("mapstructure")); ok {
		return tag
	}
	if tag, ok := tagName(field.Tag.Get("yaml")); ok {
		return tag
	}
	return toSnakeCase(field.Name)
}

func tagName(tag string) (string, bool) {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return "", false
	}
	return name, true
}

func jsonFieldName(field reflect.StructField) string {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return field.Name
	}
	name, _, found := strings.Cut(tag, ",")
	if name == "-" && !found {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func toSnakeCase(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 8)
	for i, r := range value {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(rune(value[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
