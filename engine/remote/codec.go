// Package remote serves an engine.Model over Connect and provides a
// client that implements engine.Model and engine.Vision against such a
// server, so the chat front end can run apart from the inference host.
//
// Every procedure is unary and carries a google.protobuf.Struct in each
// direction. Token slices travel as packed little-endian int32 bytes.
package remote

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/llamachat/engine"
)

// ServiceName is the fully-qualified Connect service name.
const ServiceName = "llamachat.engine.v1.EngineService"

// Procedure paths.
const (
	ProcedureInfo        = "/" + ServiceName + "/Info"
	ProcedureTokenize    = "/" + ServiceName + "/Tokenize"
	ProcedurePiece       = "/" + ServiceName + "/Piece"
	ProcedureIsEOG       = "/" + ServiceName + "/IsEOG"
	ProcedureDecode      = "/" + ServiceName + "/Decode"
	ProcedureSynchronize = "/" + ServiceName + "/Synchronize"
	ProcedureTruncate    = "/" + ServiceName + "/Truncate"
	ProcedureNewSampler  = "/" + ServiceName + "/NewSampler"
	ProcedureSample      = "/" + ServiceName + "/Sample"
	ProcedureAccept      = "/" + ServiceName + "/Accept"
	ProcedureEmbed       = "/" + ServiceName + "/Embed"
	ProcedureClose       = "/" + ServiceName + "/Close"
)

func packTokens(tokens []engine.Token) string {
	buf := make([]byte, 4*len(tokens))
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(t))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func unpackTokens(s string) ([]engine.Token, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("decode tokens: %d bytes is not a multiple of 4", len(buf))
	}
	tokens := make([]engine.Token, len(buf)/4)
	for i := range tokens {
		tokens[i] = engine.Token(int32(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return tokens, nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

func number(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func float(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolean(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func bytesField(s *structpb.Struct, key string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(str(s, key))
}

// toConnect maps engine sentinels to Connect codes so the client can
// restore them.
func toConnect(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrContextFull):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, engine.ErrVisionMissing):
		return connect.NewError(connect.CodeUnimplemented, err)
	case errors.Is(err, engine.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, engine.ErrDecode):
		return connect.NewError(connect.CodeAborted, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func fromConnect(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch connect.CodeOf(err) {
	case connect.CodeResourceExhausted:
		sentinel = engine.ErrContextFull
	case connect.CodeUnimplemented:
		sentinel = engine.ErrVisionMissing
	case connect.CodeUnavailable:
		sentinel = engine.ErrClosed
	case connect.CodeAborted:
		sentinel = engine.ErrDecode
	default:
		return fmt.Errorf("remote engine: %w", err)
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return fmt.Errorf("%w: %s", sentinel, cerr.Message())
	}
	return sentinel
}

func samplerFields(p engine.SamplerParams) map[string]any {
	return map[string]any{
		"temperature":    p.Temperature,
		"top_k":          p.TopK,
		"top_p":          p.TopP,
		"min_p":          p.MinP,
		"repeat_penalty": p.RepeatPenalty,
		"repeat_last_n":  p.RepeatLastN,
		"seed":           float64(p.Seed),
	}
}

func samplerParams(s *structpb.Struct) engine.SamplerParams {
	return engine.SamplerParams{
		Temperature:   float(s, "temperature"),
		TopK:          number(s, "top_k"),
		TopP:          float(s, "top_p"),
		MinP:          float(s, "min_p"),
		RepeatPenalty: float(s, "repeat_penalty"),
		RepeatLastN:   number(s, "repeat_last_n"),
		Seed:          uint32(float(s, "seed")),
	}
}
