// SPDX-License-Identifier: MIT

package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateFrame(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
		ok   bool
	}{
		{"valid", Payload{"timestamp": 1.5, "frame_number": 2.0}, true},
		{"missing timestamp", Payload{"frame_number": 2.0}, false},
		{"negative frame_number", Payload{"timestamp": 1.0, "frame_number": -1.0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := ValidateFrame(tc.p)
			require.Equal(t, tc.ok, ok, reason)
		})
	}
}

func TestValidateCaption(t *testing.T) {
	ok, reason := ValidateCaption(Payload{"frame_timestamp": 1.0, "text": "a cat"})
	require.True(t, ok, reason)

	ok, _ = ValidateCaption(Payload{"frame_timestamp": 1.0, "text": "   "})
	require.False(t, ok)

	ok, _ = ValidateCaption(Payload{"frame_timestamp": 1.0, "text": "x", "confidence": 1.5})
	require.False(t, ok)
}

func TestValidateTranscript(t *testing.T) {
	ok, reason := ValidateTranscript(Payload{"start": 1.0, "end": 2.0, "text": "hello"})
	require.True(t, ok, reason)

	ok, _ = ValidateTranscript(Payload{"start": 2.0, "end": 1.0, "text": "hello"})
	require.False(t, ok, "end must be greater than start")
}

func TestValidateObjectDetection(t *testing.T) {
	ok, reason := ValidateObjectDetection(Payload{
		"frame_timestamp": 1.0,
		"objects": []any{
			Payload{"class_name": "person", "confidence": 0.9, "bbox": []any{1.0, 2.0, 3.0, 4.0}},
		},
	})
	require.True(t, ok, reason)

	ok, _ = ValidateObjectDetection(Payload{
		"frame_timestamp": 1.0,
		"objects": []any{
			Payload{"class_name": "person", "confidence": 0.9, "bbox": []any{1.0, 2.0, 3.0}},
		},
	})
	require.False(t, ok, "bbox must have exactly 4 elements")

	ok, _ = ValidateObjectDetection(Payload{"frame_timestamp": 1.0, "objects": []any{}})
	require.False(t, ok, "objects must be non-empty")
}

type fakeChecker struct {
	exists bool
	err    error
}

func (f fakeChecker) VideoExists(ctx context.Context, videoID string) (bool, error) {
	return f.exists, f.err
}

func TestValidateBatch_OrderingAndExistence(t *testing.T) {
	records := []Payload{
		{"timestamp": 1.0, "frame_number": 0.0},
		{"timestamp": 2.0, "frame_number": 1.0},
	}
	err := ValidateBatch(context.Background(), KindFrame, records, "vid-1", fakeChecker{exists: true})
	require.NoError(t, err)

	outOfOrder := []Payload{
		{"timestamp": 2.0, "frame_number": 0.0},
		{"timestamp": 1.0, "frame_number": 1.0},
	}
	err = ValidateBatch(context.Background(), KindFrame, outOfOrder, "vid-1", fakeChecker{exists: true})
	require.Error(t, err)

	err = ValidateBatch(context.Background(), KindFrame, records, "missing", fakeChecker{exists: false})
	require.Error(t, err)
}

func TestValidateBatch_UnknownKind(t *testing.T) {
	err := ValidateBatch(context.Background(), ContextKind("bogus"), nil, "", nil)
	require.Error(t, err)
}
