package river

import (
	"errors"
	"testing"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type recorder struct {
	events []Event
	failOn EventKind
	err    error
}

func (r *recorder) Emit(ev Event) error {
	if r.failOn != "" && ev.Kind() == r.failOn {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind())
	}
	return out
}

func handle(t *testing.T, recs ...oplog.Record) *recorder {
	t.Helper()
	r := &recorder{}
	for _, rec := range recs {
		require.NoError(t, Translator{}.Handle(rec, r.Emit))
	}
	return r
}

func pos(t uint32, i uint32) oplog.Position { return oplog.Position{T: t, I: i} }

func TestTranslator_InsertUpdateDeleteSequence(t *testing.T) {
	a := bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: "a"}}
	b := bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: "b"}}
	filter := bson.D{{Key: "_id", Value: 1}}

	r := handle(t,
		oplog.Record{Position: pos(10, 1), Namespace: "db.foo", Op: oplog.OpInsert, Object: a},
		oplog.Record{Position: pos(10, 2), Namespace: "db.foo", Op: oplog.OpUpdate, Object: b, Object2: filter},
		oplog.Record{Position: pos(11, 1), Namespace: "db.foo", Op: oplog.OpDelete, Object: filter},
	)

	assert.Equal(t, []Event{
		Insert{Database: "db", Collection: "foo", Document: a},
		OptimeUpdate{Position: pos(10, 1)},
		Update{Database: "db", Collection: "foo", Filter: filter, Document: b},
		OptimeUpdate{Position: pos(10, 2)},
		Delete{Database: "db", Collection: "foo", Filter: filter},
		OptimeUpdate{Position: pos(11, 1)},
	}, r.events)
}

func TestTranslator_NoopEmitsNothing(t *testing.T) {
	// namespace is never parsed for no-ops
	r := handle(t, oplog.Record{Position: pos(1, 1), Namespace: "", Op: oplog.OpNoop, Object: bson.D{{Key: "msg", Value: "periodic noop"}}})
	assert.Empty(t, r.events)
}

func TestTranslator_CollectionNameWithDots(t *testing.T) {
	r := handle(t, oplog.Record{Position: pos(1, 1), Namespace: "db.system.profile.x", Op: oplog.OpInsert, Object: bson.D{}})
	require.Len(t, r.events, 2)
	ins := r.events[0].(Insert)
	assert.Equal(t, "db", ins.Database)
	assert.Equal(t, "system.profile.x", ins.Collection)
}

func TestTranslator_UnknownOpAdvancesOptime(t *testing.T) {
	r := handle(t, oplog.Record{Position: pos(3, 0), Namespace: "db.foo", Op: oplog.OpKind("xi")})
	assert.Equal(t, []Event{OptimeUpdate{Position: pos(3, 0)}}, r.events)
}

func TestTranslator_MalformedNamespaceIsFatal(t *testing.T) {
	for _, ns := range []string{"", "   ", "nodots", ".coll", "db."} {
		r := &recorder{}
		err := Translator{}.Handle(oplog.Record{Position: pos(1, 0), Namespace: ns, Op: oplog.OpInsert}, r.Emit)
		assert.True(t, errors.Is(err, oplog.ErrMalformedNamespace), "ns=%q", ns)
		assert.Empty(t, r.events, "ns=%q", ns)
	}
}

func TestTranslator_CreateIndex(t *testing.T) {
	key := bson.D{{Key: "name", Value: int32(1)}}
	doc := bson.D{
		{Key: "_id", Value: "abc"},
		{Key: "v", Value: int32(1)},
		{Key: "key", Value: key},
		{Key: "ns", Value: "shop.orders"},
		{Key: "name", Value: "name_1"},
		{Key: "unique", Value: true},
	}

	r := handle(t, oplog.Record{Position: pos(5, 0), Namespace: "shop.system.indexes", Op: oplog.OpInsert, Object: doc})

	assert.Equal(t, []Event{
		CreateIndex{
			Database:   "shop",
			Collection: "orders",
			Key:        key,
			Options:    bson.D{{Key: "v", Value: int32(1)}, {Key: "name", Value: "name_1"}, {Key: "unique", Value: true}},
		},
		OptimeUpdate{Position: pos(5, 0)},
	}, r.events)

	// source document untouched
	assert.Len(t, doc, 6)
}

func TestTranslator_CreateIndexWithoutVersion(t *testing.T) {
	doc := bson.D{{Key: "key", Value: bson.D{{Key: "a", Value: 1}}}, {Key: "ns", Value: "x.y"}, {Key: "name", Value: "a_1"}}
	r := handle(t, oplog.Record{Position: pos(5, 0), Namespace: "x.system.indexes", Op: oplog.OpInsert, Object: doc})
	require.Len(t, r.events, 2)
	ci := r.events[0].(CreateIndex)
	assert.Equal(t, "x", ci.Database)
	assert.Equal(t, "y", ci.Collection)
	assert.Equal(t, bson.D{{Key: "name", Value: "a_1"}}, ci.Options)
}

func TestTranslator_UnsupportedIndexVersionDropped(t *testing.T) {
	for _, v := range []interface{}{int32(2), int64(0), float64(2), "1"} {
		doc := bson.D{{Key: "v", Value: v}, {Key: "key", Value: bson.D{{Key: "a", Value: 1}}}, {Key: "ns", Value: "x.y"}}
		r := handle(t, oplog.Record{Position: pos(6, 2), Namespace: "x.system.indexes", Op: oplog.OpInsert, Object: doc})
		assert.Equal(t, []Event{OptimeUpdate{Position: pos(6, 2)}}, r.events, "v=%v", v)
	}
}

func TestTranslator_IndexMissingFields(t *testing.T) {
	cases := []bson.D{
		{{Key: "key", Value: bson.D{}}},
		{{Key: "ns", Value: "x.y"}},
		{{Key: "ns", Value: "x.y"}, {Key: "key", Value: "not-a-doc"}},
		{{Key: "ns", Value: "x.y"}, {Key: "key", Value: bson.M{"a": 1, "b": -1}}},
	}
	for _, doc := range cases {
		err := Translator{}.Handle(oplog.Record{Position: pos(1, 0), Namespace: "x.system.indexes", Op: oplog.OpInsert, Object: doc}, (&recorder{}).Emit)
		assert.ErrorIs(t, err, oplog.ErrMalformedRecord)
	}

	err := Translator{}.Handle(oplog.Record{Position: pos(1, 0), Namespace: "x.system.indexes", Op: oplog.OpInsert,
		Object: bson.D{{Key: "ns", Value: "nodot"}, {Key: "key", Value: bson.D{}}}}, (&recorder{}).Emit)
	assert.ErrorIs(t, err, oplog.ErrMalformedNamespace)
}

func TestTranslator_CreateCollection(t *testing.T) {
	doc := bson.D{{Key: "create", Value: "bar"}, {Key: "capped", Value: true}, {Key: "size", Value: int32(10)}}
	r := handle(t, oplog.Record{Position: pos(7, 0), Namespace: "db.$cmd", Op: oplog.OpCommand, Object: doc})

	assert.Equal(t, []Event{
		CreateCollection{Database: "db", Collection: "bar", Options: bson.D{{Key: "capped", Value: true}, {Key: "size", Value: int32(10)}}},
		OptimeUpdate{Position: pos(7, 0)},
	}, r.events)
	assert.Equal(t, "create", doc[0].Key)
}

func TestTranslator_RenameCollection(t *testing.T) {
	doc := bson.D{{Key: "renameCollection", Value: "foo.bar"}, {Key: "to", Value: "foo.bar_2"}}
	r := handle(t, oplog.Record{Position: pos(8, 0), Namespace: "admin.$cmd", Op: oplog.OpCommand, Object: doc})

	assert.Equal(t, []Event{
		RenameCollection{Database: "foo", From: "bar", To: "bar_2"},
		OptimeUpdate{Position: pos(8, 0)},
	}, r.events)
}

func TestTranslator_CrossDatabaseRenameKeepsSourceDatabase(t *testing.T) {
	doc := bson.D{{Key: "renameCollection", Value: "foo.bar"}, {Key: "to", Value: "other.baz"}}
	r := handle(t, oplog.Record{Position: pos(8, 0), Namespace: "admin.$cmd", Op: oplog.OpCommand, Object: doc})
	assert.Equal(t, RenameCollection{Database: "foo", From: "bar", To: "baz"}, r.events[0])
}

func TestTranslator_RenameWithoutTarget(t *testing.T) {
	doc := bson.D{{Key: "renameCollection", Value: "foo.bar"}}
	err := Translator{}.Handle(oplog.Record{Position: pos(8, 0), Namespace: "admin.$cmd", Op: oplog.OpCommand, Object: doc}, (&recorder{}).Emit)
	assert.ErrorIs(t, err, oplog.ErrMalformedRecord)
}

func TestTranslator_Commands(t *testing.T) {
	cases := []struct {
		name string
		doc  bson.D
		want Event
	}{
		{
			name: "drop indexes",
			doc:  bson.D{{Key: "dropIndexes", Value: "foo"}, {Key: "index", Value: "name_1"}},
			want: DeleteIndex{Database: "db", Collection: "foo", Index: "name_1"},
		},
		{
			name: "drop collection",
			doc:  bson.D{{Key: "drop", Value: "foo"}},
			want: DeleteCollection{Database: "db", Collection: "foo"},
		},
		{
			name: "drop database",
			doc:  bson.D{{Key: "dropDatabase", Value: int32(1)}},
			want: DeleteDatabase{Database: "db"},
		},
		{
			name: "dropIndexes wins over drop",
			doc:  bson.D{{Key: "drop", Value: "bar"}, {Key: "dropIndexes", Value: "foo"}, {Key: "index", Value: "*"}},
			want: DeleteIndex{Database: "db", Collection: "foo", Index: "*"},
		},
		{
			name: "create wins over drop",
			doc:  bson.D{{Key: "drop", Value: "bar"}, {Key: "create", Value: "foo"}},
			want: CreateCollection{Database: "db", Collection: "foo", Options: bson.D{{Key: "drop", Value: "bar"}}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := handle(t, oplog.Record{Position: pos(9, 1), Namespace: "db.$cmd", Op: oplog.OpCommand, Object: tc.doc})
			assert.Equal(t, []Event{tc.want, OptimeUpdate{Position: pos(9, 1)}}, r.events)
		})
	}
}

func TestTranslator_DropIndexesWithoutIndex(t *testing.T) {
	doc := bson.D{{Key: "dropIndexes", Value: "foo"}}
	err := Translator{}.Handle(oplog.Record{Position: pos(1, 0), Namespace: "db.$cmd", Op: oplog.OpCommand, Object: doc}, (&recorder{}).Emit)
	assert.ErrorIs(t, err, oplog.ErrMalformedRecord)
}

func TestTranslator_IgnoredCommands(t *testing.T) {
	cases := []oplog.Record{
		{Position: pos(2, 0), Namespace: "db.$cmd", Op: oplog.OpCommand, Object: bson.D{{Key: "collMod", Value: "foo"}}},
		{Position: pos(2, 0), Namespace: "db.foo", Op: oplog.OpCommand, Object: bson.D{{Key: "drop", Value: "foo"}}},
	}
	for _, rec := range cases {
		r := handle(t, rec)
		assert.Equal(t, []Event{OptimeUpdate{Position: pos(2, 0)}}, r.events)
	}
}

func TestTranslator_OptimeIsLastForEveryRecord(t *testing.T) {
	recs := []oplog.Record{
		{Position: pos(1, 0), Namespace: "a.b", Op: oplog.OpInsert, Object: bson.D{}},
		{Position: pos(1, 1), Namespace: "a.$cmd", Op: oplog.OpCommand, Object: bson.D{{Key: "drop", Value: "b"}}},
		{Position: pos(1, 2), Namespace: "a.$cmd", Op: oplog.OpCommand, Object: bson.D{{Key: "ping", Value: 1}}},
		{Position: pos(1, 3), Namespace: "a.b", Op: oplog.OpKind("zz")},
	}
	for _, rec := range recs {
		r := handle(t, rec)
		require.NotEmpty(t, r.events)
		optimes := 0
		for _, ev := range r.events {
			if ev.Kind() == KindOptimeUpdate {
				optimes++
			}
		}
		assert.Equal(t, 1, optimes)
		assert.Equal(t, OptimeUpdate{Position: rec.Position}, r.events[len(r.events)-1])
	}
}

func TestTranslator_SinkErrorStopsRecord(t *testing.T) {
	sinkErr := errors.New("downstream unavailable")
	r := &recorder{failOn: KindInsert, err: sinkErr}

	err := Translator{}.Handle(oplog.Record{Position: pos(1, 0), Namespace: "a.b", Op: oplog.OpInsert, Object: bson.D{}}, r.Emit)
	assert.ErrorIs(t, err, sinkErr)
	assert.Empty(t, r.events)
}

func TestTarget(t *testing.T) {
	db, coll, ok := Target(RenameCollection{Database: "d", From: "a", To: "b"})
	assert.True(t, ok)
	assert.Equal(t, "d", db)
	assert.Equal(t, "a", coll)

	db, coll, ok = Target(DeleteDatabase{Database: "d"})
	assert.True(t, ok)
	assert.Equal(t, "d", db)
	assert.Empty(t, coll)

	_, _, ok = Target(OptimeUpdate{})
	assert.False(t, ok)
}
