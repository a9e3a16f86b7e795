package registry

import (
	"testing"

	"github.com/rich-project/plexid/internal/arbiter"
	"github.com/stretchr/testify/require"
)

func slotframeDef(live *[]Object) Def {
	return Def{
		Path:        "6top/slotFrame",
		UniqueIDKey: "fd",
		Get: func(query map[string]string) ([]Object, error) {
			return append([]Object(nil), *live...), nil
		},
		Post: func(body []byte) ([]Object, error) {
			obj := Object{"fd": float64(1), "ns": float64(101)}
			*live = append(*live, obj)
			return []Object{obj}, nil
		},
		Delete: func(query map[string]string) ([]Object, error) {
			var out []Object
			var rest []Object
			for _, o := range *live {
				if formatValue(o["fd"]) == query["fd"] {
					out = append(out, o)
				} else {
					rest = append(rest, o)
				}
			}
			*live = rest
			return out, nil
		},
	}
}

// TestCreateListDeleteSlotframe is scenario 1 from §8.
func TestCreateListDeleteSlotframe(t *testing.T) {
	var live []Object
	r := New()
	r.Register(slotframeDef(&live))

	resp, err := r.Dispatch(Request{Resource: "6top/slotFrame", Method: "POST"})
	require.NoError(t, err)
	require.JSONEq(t, `[{"fd":1,"ns":101}]`, string(resp.Body))

	resp, err = r.Dispatch(Request{Resource: "6top/slotFrame", Method: "GET"})
	require.NoError(t, err)
	require.JSONEq(t, `[{"fd":1,"ns":101}]`, string(resp.Body))

	resp, err = r.Dispatch(Request{Resource: "6top/slotFrame", Method: "DELETE", Query: map[string]string{"fd": "1"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"fd":1,"ns":101}`, string(resp.Body), "collapses to scalar on the resource's own unique id")

	resp, err = r.Dispatch(Request{Resource: "6top/slotFrame", Method: "GET"})
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(resp.Body))
}

// TestFieldSelectorOnCellList is scenario 2: GET 6top/cellList/so?fd=1
// returns the array of "so" values, NOT collapsed, since fd is not
// cellList's own unique identifier (cd is).
func TestFieldSelectorOnCellList(t *testing.T) {
	r := New()
	r.Register(Def{
		Path:        "6top/cellList",
		UniqueIDKey: "cd",
		Get: func(query map[string]string) ([]Object, error) {
			return []Object{{"cd": float64(1), "fd": float64(1), "so": float64(5), "co": float64(2)}}, nil
		},
	})

	resp, err := r.Dispatch(Request{
		Resource: "6top/cellList", Method: "GET", Field: "so",
		Query: map[string]string{"fd": "1"},
	})
	require.NoError(t, err)
	require.JSONEq(t, `[5]`, string(resp.Body))
}

func TestUnknownResourceNotFound(t *testing.T) {
	r := New()
	resp, err := r.Dispatch(Request{Resource: "6top/bogus", Method: "GET"})
	require.NoError(t, err)
	require.Equal(t, arbiter.StatusNotFound, resp.Status)
}

func TestContentNegotiationRejectsNonJSON(t *testing.T) {
	r := New()
	r.Register(Def{Path: "6top/slotFrame", Get: func(map[string]string) ([]Object, error) { return nil, nil }})
	resp, err := r.Dispatch(Request{Resource: "6top/slotFrame", Method: "GET", Accept: "text/plain"})
	require.NoError(t, err)
	require.Equal(t, arbiter.StatusNotAcceptable, resp.Status)
}
