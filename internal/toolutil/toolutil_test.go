package toolutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormSources(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"blank only", []string{" ", ""}, nil},
		{"aliases", []string{"WeChat-MP", "知识星球", "HN", "x"}, []string{"wechat_mp", "zsxq", "hackernews", "twitter"}},
		{"dedup keeps order", []string{"youtube", "yt", "wechat", "wechat_mp"}, []string{"youtube", "wechat_mp"}},
		{"unknown passes through", []string{" Reddit "}, []string{"reddit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormSources(tt.in))
		})
	}
}

func TestUnknown(t *testing.T) {
	known := []string{"youtube", "zsxq"}
	assert.Empty(t, Unknown([]string{"zsxq"}, known))
	assert.Equal(t, []string{"reddit"}, Unknown([]string{"youtube", "reddit"}, known))
}
