package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHistory(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		field   string
		want    []string
		wantErr bool
	}{
		{name: "empty blob", blob: "", field: "state", want: nil},
		{name: "empty object", blob: "{}", field: "state", want: nil},
		{name: "null", blob: "null", field: "state", want: nil},
		{name: "stack oldest first", blob: `{"state":["A","B"]}`, field: "state", want: []string{"A", "B"}},
		{name: "other field", blob: `{"stage":["A"]}`, field: "state", want: nil},
		{name: "malformed", blob: `{"state":`, field: "state", wantErr: true},
		{name: "wrong shape", blob: `{"state":"A"}`, field: "state", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, err := DecodeHistory(tt.blob)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, history.Stack(tt.field))
			assert.Equal(t, len(tt.want), history.Len(tt.field))
		})
	}
}

func TestHistory_EncodeRoundTrip(t *testing.T) {
	blobs := []string{
		`{}`,
		`{"state":["A"]}`,
		`{"stage":["X","Y"],"state":["A","B","C"]}`,
	}

	for _, blob := range blobs {
		history, err := DecodeHistory(blob)
		require.NoError(t, err)

		encoded, err := history.Encode()
		require.NoError(t, err)
		assert.Equal(t, blob, encoded)
	}
}

func TestHistory_PushPop(t *testing.T) {
	history, err := DecodeHistory("")
	require.NoError(t, err)

	history.Push("state", "A")
	history.Push("state", "B")
	history.Push("stage", "X")

	assert.Equal(t, 2, history.Len("state"))
	assert.Equal(t, 1, history.Len("stage"))

	name, err := history.Pop("state")
	require.NoError(t, err)
	assert.Equal(t, "B", name)

	name, err = history.Pop("state")
	require.NoError(t, err)
	assert.Equal(t, "A", name)

	_, err = history.Pop("state")
	require.Error(t, err)
	assert.True(t, IsEmptyHistory(err))
	assert.Equal(t, 0, history.Len("state"))

	encoded, err := history.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"stage":["X"]}`, encoded)
}

func TestHistory_StackIsACopy(t *testing.T) {
	history, err := DecodeHistory(`{"state":["A"]}`)
	require.NoError(t, err)

	stack := history.Stack("state")
	stack[0] = "Z"

	assert.Equal(t, []string{"A"}, history.Stack("state"))
}
