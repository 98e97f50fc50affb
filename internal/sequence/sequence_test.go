package sequence

import "testing"

func ptr(v int64) *int64 { return &v }

func TestNext(t *testing.T) {
	testCases := []struct {
		name    string
		current *int64
		seed    int64
		want    int64
	}{
		{name: "no rows uses seed", current: nil, seed: 100, want: 101},
		{name: "existing maximum", current: ptr(57), seed: 100, want: 58},
		{name: "zero maximum uses seed", current: ptr(0), seed: 100, want: 101},
		{name: "negative maximum uses seed", current: ptr(-3), seed: 100, want: 101},
		{name: "maximum below seed still wins", current: ptr(5), seed: 100, want: 6},
		{name: "zero seed", current: nil, seed: 0, want: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Next(tc.current, tc.seed); got != tc.want {
				t.Errorf("Next() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestNext_IsDeterministic(t *testing.T) {
	current := ptr(41)
	first := Next(current, 0)
	second := Next(current, 0)

	if first != second {
		t.Errorf("expected identical proposals, got %d and %d", first, second)
	}
	if *current != 41 {
		t.Errorf("input was mutated: %d", *current)
	}
}
