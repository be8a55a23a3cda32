package qdrant

import (
	"reflect"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestPointID(t *testing.T) {
	t.Run("numeric isbn becomes num id", func(t *testing.T) {
		id := pointID("9780439708180")
		num, ok := id.PointIdOptions.(*pb.PointId_Num)
		if !ok {
			t.Fatalf("expected PointId_Num, got %T", id.PointIdOptions)
		}
		if num.Num != 9780439708180 {
			t.Errorf("expected 9780439708180, got %d", num.Num)
		}
	})

	t.Run("non-numeric id becomes uuid", func(t *testing.T) {
		id := pointID("550e8400-e29b-41d4-a716-446655440000")
		uuid, ok := id.PointIdOptions.(*pb.PointId_Uuid)
		if !ok {
			t.Fatalf("expected PointId_Uuid, got %T", id.PointIdOptions)
		}
		if uuid.Uuid != "550e8400-e29b-41d4-a716-446655440000" {
			t.Errorf("expected uuid preserved, got %q", uuid.Uuid)
		}
	})

	t.Run("negative number falls back to uuid", func(t *testing.T) {
		id := pointID("-42")
		if _, ok := id.PointIdOptions.(*pb.PointId_Uuid); !ok {
			t.Errorf("expected PointId_Uuid, got %T", id.PointIdOptions)
		}
	})
}

func TestBuildFilter(t *testing.T) {
	t.Run("empty filter returns nil", func(t *testing.T) {
		if got := buildFilter(nil); got != nil {
			t.Errorf("expected nil filter, got %v", got)
		}
		if got := buildFilter(map[string]interface{}{}); got != nil {
			t.Errorf("expected nil filter, got %v", got)
		}
	})

	t.Run("category keyword condition", func(t *testing.T) {
		got := buildFilter(map[string]interface{}{"simple_categories": "Fiction"})
		if got == nil || len(got.Must) != 1 {
			t.Fatalf("expected 1 condition, got %v", got)
		}
		field := got.Must[0].GetField()
		if field == nil {
			t.Fatal("expected field condition")
		}
		if field.Key != "simple_categories" {
			t.Errorf("expected key simple_categories, got %q", field.Key)
		}
		kw, ok := field.Match.MatchValue.(*pb.Match_Keyword)
		if !ok {
			t.Fatalf("expected keyword match, got %T", field.Match.MatchValue)
		}
		if kw.Keyword != "Fiction" {
			t.Errorf("expected Fiction, got %q", kw.Keyword)
		}
	})

	t.Run("integer and boolean conditions", func(t *testing.T) {
		got := buildFilter(map[string]interface{}{
			"published_year": 2001,
			"isbn13":         int64(9780439708180),
			"available":      true,
		})
		if got == nil || len(got.Must) != 3 {
			t.Fatalf("expected 3 conditions, got %v", got)
		}
	})

	t.Run("unsupported value types skipped", func(t *testing.T) {
		got := buildFilter(map[string]interface{}{
			"rating": 4.5,
			"tags":   []string{"a"},
		})
		if got != nil {
			t.Errorf("expected nil filter when no condition applies, got %v", got)
		}
	})
}

func TestPayloadValue(t *testing.T) {
	tests := []struct {
		name  string
		value *pb.Value
		want  interface{}
	}{
		{
			name:  "string",
			value: &pb.Value{Kind: &pb.Value_StringValue{StringValue: "The Hobbit"}},
			want:  "The Hobbit",
		},
		{
			name:  "integer",
			value: &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: 1937}},
			want:  int64(1937),
		},
		{
			name:  "double",
			value: &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: 4.27}},
			want:  4.27,
		},
		{
			name:  "bool",
			value: &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: true}},
			want:  true,
		},
		{
			name:  "null",
			value: &pb.Value{Kind: &pb.Value_NullValue{}},
			want:  nil,
		},
		{
			name:  "nil value",
			value: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := payloadValue(tt.value); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("list", func(t *testing.T) {
		value := &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{
			Values: []*pb.Value{
				{Kind: &pb.Value_StringValue{StringValue: "a"}},
				{Kind: &pb.Value_IntegerValue{IntegerValue: 2}},
			},
		}}}
		got := payloadValue(value)
		want := []interface{}{"a", int64(2)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("nested struct", func(t *testing.T) {
		value := &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{
			Fields: map[string]*pb.Value{
				"title": {Kind: &pb.Value_StringValue{StringValue: "Dune"}},
			},
		}}}
		got := payloadValue(value)
		want := map[string]interface{}{"title": "Dune"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})
}

func TestPayloadToMap(t *testing.T) {
	if got := payloadToMap(nil); got != nil {
		t.Errorf("expected nil for nil payload, got %v", got)
	}

	payload := map[string]*pb.Value{
		"title":  {Kind: &pb.Value_StringValue{StringValue: "Emma"}},
		"isbn13": {Kind: &pb.Value_IntegerValue{IntegerValue: 9780000000001}},
	}
	got := payloadToMap(payload)
	want := map[string]interface{}{
		"title":  "Emma",
		"isbn13": int64(9780000000001),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
