package transformer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/maxpert/mongoriver/publisher"
	"github.com/maxpert/mongoriver/river"
	"go.mongodb.org/mongo-driver/bson"
)

func init() {
	publisher.RegisterTransformer("debezium", func() publisher.Transformer {
		return NewDebeziumTransformer()
	})
}

// DebeziumTransformer encodes events in the Debezium MongoDB connector
// envelope: a schema section plus a payload whose document fields are
// Extended JSON strings.
//
//   - insert: op "c", after = full document
//   - update: op "u", after = replacement document, or patch = modifier
//     document; filter = the _id selector
//   - delete: op "d", filter = the _id selector
//   - collection, index and database changes: op "ddl" with a ddl string
//     describing the change
//
// Schemas are cached per namespace.
type DebeziumTransformer struct {
	connectorName string
	schemaCache   sync.Map // "db.coll" -> *debeziumEnvelopeSchema
}

// NewDebeziumTransformer creates a new Debezium transformer
func NewDebeziumTransformer() *DebeziumTransformer {
	return &DebeziumTransformer{
		connectorName: "mongoriver",
	}
}

type debeziumEnvelopeSchema struct {
	Type     string                `json:"type"`
	Name     string                `json:"name"`
	Optional bool                  `json:"optional"`
	Fields   []debeziumSchemaField `json:"fields"`
}

type debeziumSchemaField struct {
	Field    string                `json:"field"`
	Type     string                `json:"type"`
	Optional bool                  `json:"optional"`
	Name     string                `json:"name,omitempty"`
	Version  int                   `json:"version,omitempty"`
	Fields   []debeziumSchemaField `json:"fields,omitempty"`
}

type debeziumMessage struct {
	Schema  *debeziumEnvelopeSchema `json:"schema"`
	Payload debeziumPayload         `json:"payload"`
}

type debeziumPayload struct {
	After  *string        `json:"after"`
	Patch  *string        `json:"patch"`
	Filter *string        `json:"filter"`
	DDL    *string        `json:"ddl,omitempty"`
	Op     string         `json:"op"`
	TsMs   int64          `json:"ts_ms"`
	Source debeziumSource `json:"source"`
}

type debeziumSource struct {
	Connector  string `json:"connector"`
	Name       string `json:"name"`
	TsMs       int64  `json:"ts_ms"`
	Db         string `json:"db"`
	Collection string `json:"collection"`
	Ord        uint32 `json:"ord"`
	NodeID     uint64 `json:"node_id"`
}

// Transform converts a message to Debezium JSON with schema
func (d *DebeziumTransformer) Transform(msg publisher.Message) ([]byte, error) {
	f, err := fieldsOf(msg.Event)
	if err != nil {
		return nil, err
	}

	tsMs := int64(msg.Position.T) * 1000
	payload := debeziumPayload{
		TsMs: tsMs,
		Source: debeziumSource{
			Connector:  d.connectorName,
			Name:       d.connectorName,
			TsMs:       tsMs,
			Db:         f.Database,
			Collection: f.Collection,
			Ord:        msg.Position.I,
			NodeID:     msg.NodeID,
		},
	}

	switch msg.Event.Kind() {
	case river.KindInsert:
		payload.Op = "c"
		if payload.After, err = extJSONString(f.Document); err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
	case river.KindUpdate:
		payload.Op = "u"
		if isModifier(f.Document) {
			payload.Patch, err = extJSONString(f.Document)
		} else {
			payload.After, err = extJSONString(f.Document)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode document: %w", err)
		}
		if payload.Filter, err = extJSONString(f.Filter); err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}
	case river.KindDelete:
		payload.Op = "d"
		if payload.Filter, err = extJSONString(f.Filter); err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}
	default:
		payload.Op = "ddl"
		if payload.DDL, err = d.describeDDL(msg.Event.Kind(), f); err != nil {
			return nil, fmt.Errorf("failed to encode ddl: %w", err)
		}
	}

	message := debeziumMessage{
		Schema:  d.getOrBuildSchema(f.Database, f.Collection),
		Payload: payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// Tombstone creates a tombstone marker (null value for Kafka log compaction)
func (d *DebeziumTransformer) Tombstone(key string) []byte {
	return nil
}

// describeDDL renders a schema change as an Extended JSON command string
func (d *DebeziumTransformer) describeDDL(kind river.EventKind, f eventFields) (*string, error) {
	ddl := bson.D{{Key: "kind", Value: string(kind)}}
	if f.Collection != "" {
		ddl = append(ddl, bson.E{Key: "collection", Value: f.Collection})
	}
	if f.To != "" {
		ddl = append(ddl, bson.E{Key: "to", Value: f.To})
	}
	if f.Key != nil {
		ddl = append(ddl, bson.E{Key: "key", Value: f.Key})
	}
	if f.Index != "" {
		ddl = append(ddl, bson.E{Key: "index", Value: f.Index})
	}
	if len(f.Options) > 0 {
		ddl = append(ddl, bson.E{Key: "options", Value: f.Options})
	}
	return extJSONString(ddl)
}

func extJSONString(doc bson.D) (*string, error) {
	raw, err := extJSON(doc)
	if err != nil || raw == nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func (d *DebeziumTransformer) getOrBuildSchema(database, collection string) *debeziumEnvelopeSchema {
	key := database + "." + collection

	if cached, ok := d.schemaCache.Load(key); ok {
		return cached.(*debeziumEnvelopeSchema)
	}

	schema := d.buildEnvelopeSchema(key)
	actual, _ := d.schemaCache.LoadOrStore(key, schema)
	return actual.(*debeziumEnvelopeSchema)
}

// buildEnvelopeSchema constructs the envelope schema for a namespace. Document
// fields are opaque JSON strings, so the schema only varies by name.
func (d *DebeziumTransformer) buildEnvelopeSchema(namespace string) *debeziumEnvelopeSchema {
	jsonField := func(name string) debeziumSchemaField {
		return debeziumSchemaField{
			Field:    name,
			Type:     "string",
			Optional: true,
			Name:     "io.debezium.data.Json",
			Version:  1,
		}
	}

	return &debeziumEnvelopeSchema{
		Type: "struct",
		Name: namespace + ".Envelope",
		Fields: []debeziumSchemaField{
			jsonField("after"),
			jsonField("patch"),
			jsonField("filter"),
			jsonField("ddl"),
			{Field: "op", Type: "string"},
			{Field: "ts_ms", Type: "int64", Optional: true},
			{
				Field: "source",
				Type:  "struct",
				Name:  "io.mongoriver.Source",
				Fields: []debeziumSchemaField{
					{Field: "connector", Type: "string"},
					{Field: "name", Type: "string"},
					{Field: "ts_ms", Type: "int64"},
					{Field: "db", Type: "string"},
					{Field: "collection", Type: "string", Optional: true},
					{Field: "ord", Type: "int32"},
					{Field: "node_id", Type: "int64"},
				},
			},
		},
	}
}
