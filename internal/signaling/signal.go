package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/webrtc"
)

// SignalType is the "type" field of a peer signal.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// Signal is the negotiation message exchanged between the two members:
// {type: "offer"|"answer"|"candidate", offer|answer|candidate: ...}.
type Signal struct {
	Type      SignalType                 `json:"type"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

func OfferSignal(d webrtc.SessionDescription) Signal {
	return Signal{Type: SignalOffer, Offer: &d}
}

func AnswerSignal(d webrtc.SessionDescription) Signal {
	return Signal{Type: SignalAnswer, Answer: &d}
}

func CandidateSignal(c webrtc.ICECandidateInit) Signal {
	return Signal{Type: SignalCandidate, Candidate: &c}
}

// EncodeSignal marshals s for a peer message payload.
func EncodeSignal(s Signal) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignal parses and validates a peer payload. Every failure wraps
// call.ErrProtocolViolation.
func DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, call.NewError("decode signal", call.ErrProtocolViolation, err)
	}

	switch s.Type {
	case SignalOffer:
		if s.Offer == nil {
			return Signal{}, missing(s.Type)
		}
		if !webrtc.IsOffer(*s.Offer) {
			return Signal{}, call.NewError("decode signal", call.ErrProtocolViolation,
				fmt.Errorf("offer carries %q description", s.Offer.Type))
		}
	case SignalAnswer:
		if s.Answer == nil {
			return Signal{}, missing(s.Type)
		}
		if !webrtc.IsAnswer(*s.Answer) {
			return Signal{}, call.NewError("decode signal", call.ErrProtocolViolation,
				fmt.Errorf("answer carries %q description", s.Answer.Type))
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return Signal{}, missing(s.Type)
		}
	default:
		return Signal{}, call.NewError("decode signal", call.ErrProtocolViolation,
			fmt.Errorf("%w: %q", call.ErrUnknownSignal, s.Type))
	}
	return s, nil
}

func missing(t SignalType) error {
	return call.NewError("decode signal", call.ErrProtocolViolation,
		fmt.Errorf("%w: %s", call.ErrMissingPayload, t))
}
