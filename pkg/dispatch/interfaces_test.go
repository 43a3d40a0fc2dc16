package dispatch_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tinywideclouds/go-push-relay/pkg/dispatch"
)

func TestChunk(t *testing.T) {
	testCases := []struct {
		name     string
		items    []int
		size     int
		expected [][]int
	}{
		{name: "Empty input", items: nil, size: 3, expected: nil},
		{name: "Exact multiple", items: []int{1, 2, 3, 4}, size: 2, expected: [][]int{{1, 2}, {3, 4}}},
		{name: "Remainder in last chunk", items: []int{1, 2, 3, 4, 5}, size: 2, expected: [][]int{{1, 2}, {3, 4}, {5}}},
		{name: "Size larger than input", items: []int{1, 2}, size: 100, expected: [][]int{{1, 2}}},
		{name: "Non-positive size keeps one chunk", items: []int{1, 2, 3}, size: 0, expected: [][]int{{1, 2, 3}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, dispatch.Chunk(tc.items, tc.size))
		})
	}
}

func TestGatewayError(t *testing.T) {
	cause := errors.New("connection reset")

	t.Run("Includes status when present", func(t *testing.T) {
		err := &dispatch.GatewayError{Op: "submit", StatusCode: 503, Err: cause}
		assert.Equal(t, "gateway submit failed (status 503): connection reset", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("Omits status when zero", func(t *testing.T) {
		err := &dispatch.GatewayError{Op: "receipts", Err: cause}
		assert.Equal(t, "gateway receipts failed: connection reset", err.Error())
	})
}
