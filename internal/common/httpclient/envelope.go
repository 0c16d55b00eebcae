package httpclient

import (
	"bytes"
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ListResult is the normalized shape of a collection response. List
// endpoints return either a bare JSON array or a {results, count} envelope;
// every consumer goes through UnwrapList so no caller branches on shape.
type ListResult struct {
	Items []json.RawMessage // one raw entity per element
	Total int               // envelope count when present, else len(Items)
}

// listEnvelope is the paginated wrapper shape.
type listEnvelope struct {
	Results []json.RawMessage `json:"results"`
	Count   *int              `json:"count"`
}

// UnwrapList normalizes a collection response body. An empty body yields an
// empty result rather than an error.
func UnwrapList(body []byte) (ListResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ListResult{Items: []json.RawMessage{}}, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := jsoniter.Unmarshal(trimmed, &items); err != nil {
			return ListResult{}, errors.Wrap(ErrDecode, err.Error())
		}
		return ListResult{Items: items, Total: len(items)}, nil
	}

	var envelope listEnvelope
	if err := jsoniter.Unmarshal(trimmed, &envelope); err != nil {
		return ListResult{}, errors.Wrap(ErrDecode, err.Error())
	}
	if envelope.Results == nil {
		return ListResult{}, errors.New("response is neither a list nor a results envelope")
	}
	total := len(envelope.Results)
	if envelope.Count != nil {
		total = *envelope.Count
	}
	return ListResult{Items: envelope.Results, Total: total}, nil
}
