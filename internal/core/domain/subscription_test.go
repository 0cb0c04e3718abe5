package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestStreamRequestUnmarshal(t *testing.T) {
	var batch []StreamRequest
	payload := `["head_position", {"stream": "location_update", "rate": "high"}]`
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}

	want := []StreamRequest{
		{Stream: "head_position"},
		{Stream: "location_update", Rate: TierHigh},
	}
	if !reflect.DeepEqual(batch, want) {
		t.Fatalf("expected %+v, got %+v", want, batch)
	}
	if batch[0].IsStructured() || !batch[1].IsStructured() {
		t.Fatalf("structured detection broken: %+v", batch)
	}

	if err := json.Unmarshal([]byte(`42`), new(StreamRequest)); err == nil {
		t.Fatalf("expected error for non-string non-object descriptor")
	}
}

func TestStreamRequestMarshal(t *testing.T) {
	out, err := json.Marshal([]StreamRequest{
		Plain("head_position"),
		WithRate("location_update", TierRealtime),
	})
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}

	want := `["head_position",{"stream":"location_update","rate":"realtime"}]`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}
