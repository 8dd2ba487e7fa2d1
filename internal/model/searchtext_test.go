package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSearchText(t *testing.T) {
	cases := []struct {
		name  string
		parts []string
		want  string
	}{
		{"lowercases", []string{"Hello World"}, "hello world"},
		{"collapses punctuation", []string{"hey!!  there... ok?"}, "hey there ok"},
		{"keeps non-latin scripts", []string{"제주도 여행 사진"}, "제주도 여행 사진"},
		{"mixed scripts", []string{"Jeju 제주 Trip #3"}, "jeju 제주 trip 3"},
		{"joins parts", []string{"photo.jpg", "Beach day"}, "photo jpg beach day"},
		{"empty", []string{""}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveSearchText(tc.parts...))
		})
	}
}

func TestSentinelFor(t *testing.T) {
	assert.Equal(t, SentinelUserID, SentinelFor(RoleUser))
	assert.Equal(t, SentinelAdminID, SentinelFor(RoleHost))
	assert.Equal(t, SentinelAdminID, SentinelFor(RoleAdmin))
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel(SentinelUserID))
	assert.True(t, IsSentinel(SentinelAdminID))
	assert.False(t, IsSentinel(0))
	assert.False(t, IsSentinel(1))
}
