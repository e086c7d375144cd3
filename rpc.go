package edupage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	http "github.com/bogdanfinn/fhttp"
)

// defaultMaxEqav is the envelope version cap advertised to the portal.
const defaultMaxEqav = 7

// RPCSequencer drives one logical wrapped call through a bounded sequence of
// envelope attempts. Only the portal's wrong-data sentinel triggers the next
// ordinal; transport errors belong to the transport's failure domain and
// propagate immediately.
//
// The sequencer is stateless: every Call derives its attempts from the
// immutable {path, action, params} triple.
type RPCSequencer struct {
	maxOrdinal int
	encrypt    bool
	logger     Logger
}

// NewRPCSequencer configures the retry protocol. maxOrdinal <= 0 selects the
// default cap.
func NewRPCSequencer(maxOrdinal int, encrypt bool, logger Logger) *RPCSequencer {
	if maxOrdinal <= 0 {
		maxOrdinal = defaultMaxEqav
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &RPCSequencer{maxOrdinal: maxOrdinal, encrypt: encrypt, logger: logger}
}

// Call POSTs the wrapped RPC to path, renegotiating the envelope version on
// each wrong-data rejection, and returns the decoded JSON payload.
func (s *RPCSequencer) Call(ctx context.Context, sess *Session, path, action string, params any) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc %q: encoding params: %w", action, err)
	}

	// The canonical form string is built once; each ordinal re-wraps it.
	form := url.Values{
		"action": {action},
		"params": {string(paramsJSON)},
	}.Encode()

	endpoint := sess.URL(path)
	header := sess.profile.FormHeader(sess.Origin.String(), endpoint)

	for ordinal := 1; ordinal <= s.maxOrdinal; ordinal++ {
		attempt, err := EncodeEnvelope(form, ordinal, s.encrypt)
		if err != nil {
			return nil, err
		}

		target, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		query := target.Query()
		query.Set("eqav", strconv.Itoa(attempt.Ordinal))
		query.Set("maxEqav", strconv.Itoa(s.maxOrdinal))
		target.RawQuery = query.Encode()

		body := url.Values{
			"eqap":  {attempt.Payload},
			"eqacs": {attempt.Digest},
			"eqaz":  {attempt.EncryptionFlag},
		}.Encode()

		resp, err := sess.transport.Request(ctx, http.MethodPost, target.String(), []byte(body), header)
		if err != nil {
			return nil, err
		}

		raw := string(resp.Body)
		if IsWrongData(raw) {
			s.logger.Log("rpc %s rejected envelope v%d, renegotiating", action, ordinal)
			continue
		}

		decoded, err := DecodeEnvelope(raw)
		if err != nil {
			return nil, &RpcParseError{Action: action, Snippet: bodySnippet(raw)}
		}
		if !json.Valid([]byte(decoded)) {
			return nil, &RpcParseError{Action: action, Snippet: bodySnippet(decoded)}
		}
		return json.RawMessage(decoded), nil
	}

	return nil, &RpcExhaustedError{Action: action, Attempts: s.maxOrdinal}
}
