package signaling

import (
	"errors"
	"testing"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalRoundTrip(t *testing.T) {
	mline := uint16(0)
	mid := "0"

	tests := []struct {
		name string
		sig  Signal
	}{
		{"offer", OfferSignal(webrtc.NewOffer("v=0 offer"))},
		{"answer", AnswerSignal(webrtc.NewAnswer("v=0 answer"))},
		{"candidate", CandidateSignal(webrtc.ICECandidateInit{
			Candidate:     "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &mline,
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeSignal(tt.sig)
			require.NoError(t, err)

			got, err := DecodeSignal(data)
			require.NoError(t, err)
			assert.Equal(t, tt.sig, got)
		})
	}
}

func TestSignalWireShape(t *testing.T) {
	data, err := EncodeSignal(OfferSignal(webrtc.NewOffer("v=0")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"offer","offer":{"type":"offer","sdp":"v=0"}}`, string(data))
}

func TestDecodeSignalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		cause error
	}{
		{"not json", `hello`, nil},
		{"unknown type", `{"type":"bye"}`, call.ErrUnknownSignal},
		{"offer without payload", `{"type":"offer"}`, call.ErrMissingPayload},
		{"answer without payload", `{"type":"answer"}`, call.ErrMissingPayload},
		{"candidate without payload", `{"type":"candidate"}`, call.ErrMissingPayload},
		{"offer carrying answer", `{"type":"offer","offer":{"type":"answer","sdp":"v=0"}}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSignal([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, call.ErrProtocolViolation))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}
