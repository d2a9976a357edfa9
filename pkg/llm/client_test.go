package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "带语言标记的围栏",
			raw:  "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "不带语言标记的围栏",
			raw:  "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "围栏前后有说明文字",
			raw:  "好的，结果如下：\n```json\n{\"type\": \"humming\"}\n```\n希望有帮助。",
			want: `{"type": "humming"}`,
		},
		{
			name: "没有围栏但混有文字",
			raw:  "结果是 {\"a\": {\"b\": 2}} 请查收",
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "纯 JSON 原样返回",
			raw:  `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "完全不是 JSON 时原样返回",
			raw:  "抱歉我不知道",
			want: "抱歉我不知道",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONBlock(tt.raw))
		})
	}
}
