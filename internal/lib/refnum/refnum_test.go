package refnum

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name    string
		seed    int64
		want    int64
		wantErr bool
	}{
		{name: "three digit seed", seed: 100, want: 1009},
		{name: "member base plus id", seed: 1001, want: 10016},
		{name: "known bank example", seed: 123456, want: 1234561},
		{name: "too short", seed: 99, wantErr: true},
		{name: "negative", seed: -1000, wantErr: true},
		{name: "too long", seed: MaxSeed + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.seed)
			if tt.wantErr {
				var ve models.ValidationError
				require.True(t, errors.As(err, &ve))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate_Stable(t *testing.T) {
	a, err := Generate(500042)
	require.NoError(t, err)
	b, err := Generate(500042)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerate_NoCollisions(t *testing.T) {
	seen := make(map[int64]int64)
	for seed := int64(1000); seed < 21000; seed++ {
		ref, err := Generate(seed)
		require.NoError(t, err)
		prev, dup := seen[ref]
		require.False(t, dup, "seed %d collides with %d", seed, prev)
		seen[ref] = seed
	}
}

func TestValidate_GeneratedAlwaysValid(t *testing.T) {
	for _, seed := range []int64{100, 999, 1000, 1234, 98765, 500000, 123456789012, MaxSeed} {
		ref, err := Generate(seed)
		require.NoError(t, err)
		assert.True(t, Validate(ref), "seed %d", seed)
	}
}

func TestValidate_DetectsSingleDigitMutation(t *testing.T) {
	for _, seed := range []int64{100, 1001, 4711, 500123, 987654321} {
		ref, err := Generate(seed)
		require.NoError(t, err)

		digits := []byte(strconv.FormatInt(ref, 10))
		for pos := range digits {
			orig := digits[pos]
			for d := byte('0'); d <= '9'; d++ {
				if d == orig || (pos == 0 && d == '0') {
					continue
				}
				digits[pos] = d
				mutated, err := strconv.ParseInt(string(digits), 10, 64)
				require.NoError(t, err)
				assert.False(t, Validate(mutated), "mutation %d of %d passed", mutated, ref)
			}
			digits[pos] = orig
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	assert.False(t, Validate(0))
	assert.False(t, Validate(-10016))
	assert.False(t, Validate(999))
	assert.False(t, Validate(10017))
}

func TestParse(t *testing.T) {
	ref, err := Parse(" 00 1001 6 ")
	require.NoError(t, err)
	assert.Equal(t, int64(10016), ref)

	_, err = Parse("10017")
	var ve models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "check digit mismatch", ve.Message)

	_, err = Parse("RF12")
	require.Error(t, err)

	_, err = Parse("   ")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "12 34561", Format(1234561))
	assert.Equal(t, "10016", Format(10016))
	assert.Equal(t, "10 00000 00009", Format(100000000009))
}
