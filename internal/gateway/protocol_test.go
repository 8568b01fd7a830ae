package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame("chain_update", []byte(`{"product":"NIFTY"}`))
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Equal(t, "chain_update", decoded.Event)
	require.JSONEq(t, `{"product":"NIFTY"}`, string(decoded.Data))
}

func TestEncodeValue(t *testing.T) {
	frame, err := encodeValue("subscribed", SubscribedPayload{Room: "product:NIFTY"})
	require.NoError(t, err)

	var decoded Frame
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Equal(t, "subscribed", decoded.Event)

	var payload SubscribedPayload
	require.NoError(t, json.Unmarshal(decoded.Data, &payload))
	require.Equal(t, "product:NIFTY", payload.Room)
}

func TestRoomRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     RoomRequest
		wantErr bool
	}{
		{"valid product", RoomRequest{Kind: "product", Symbol: "NIFTY"}, false},
		{"valid chain", RoomRequest{Kind: "chain", Symbol: "BANKNIFTY50000"}, false},
		{"invalid kind", RoomRequest{Kind: "general", Symbol: "NIFTY"}, true},
		{"empty kind", RoomRequest{Kind: "", Symbol: "NIFTY"}, true},
		{"lowercase symbol", RoomRequest{Kind: "product", Symbol: "nifty"}, true},
		{"symbol too long", RoomRequest{Kind: "product", Symbol: "THISSYMBOLISWAYTOOLONG"}, true},
		{"empty symbol", RoomRequest{Kind: "product", Symbol: ""}, true},
		{"symbol with punctuation", RoomRequest{Kind: "product", Symbol: "NIFTY-50"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
