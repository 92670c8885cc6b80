package query

import (
	"reflect"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *Command
		wantErr  bool
	}{
		{
			name:     "get single key",
			input:    "GET mykey",
			expected: &Command{Kind: KindGet, Keys: []string{"mykey"}},
		},
		{
			name:     "get multiple keys",
			input:    "GET k1 k2 k3",
			expected: &Command{Kind: KindGet, Keys: []string{"k1", "k2", "k3"}},
		},
		{
			name:     "lowercase verb",
			input:    "get mykey",
			expected: &Command{Kind: KindGet, Keys: []string{"mykey"}},
		},
		{
			name:     "get with routing tag",
			input:    "GET {user:1}:name {user:1}:email",
			expected: &Command{Kind: KindGet, Keys: []string{"{user:1}:name", "{user:1}:email"}},
		},
		{
			name:     "set",
			input:    "SET mykey myvalue",
			expected: &Command{Kind: KindSet, Keys: []string{"mykey"}, Value: "myvalue"},
		},
		{
			name:     "set with ttl",
			input:    "SET mykey myvalue TTL 30s",
			expected: &Command{Kind: KindSet, Keys: []string{"mykey"}, Value: "myvalue", TTL: 30 * time.Second},
		},
		{
			name:     "set with quoted value",
			input:    `SET mykey "hello world"`,
			expected: &Command{Kind: KindSet, Keys: []string{"mykey"}, Value: "hello world"},
		},
		{
			name:     "set empty quoted value",
			input:    `SET mykey ""`,
			expected: &Command{Kind: KindSet, Keys: []string{"mykey"}, Value: ""},
		},
		{
			name:     "exists multiple keys",
			input:    "EXISTS a b",
			expected: &Command{Kind: KindExists, Keys: []string{"a", "b"}},
		},
		{
			name:     "keys",
			input:    "KEYS",
			expected: &Command{Kind: KindKeys},
		},
		{
			name:     "nodes",
			input:    "NODES",
			expected: &Command{Kind: KindNodes},
		},
		{
			name:     "refresh",
			input:    "REFRESH",
			expected: &Command{Kind: KindRefresh},
		},
		{
			name:     "quit alias",
			input:    "quit",
			expected: &Command{Kind: KindExit},
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "unknown verb",
			input:   "FROB mykey",
			wantErr: true,
		},
		{
			name:    "get without keys",
			input:   "GET",
			wantErr: true,
		},
		{
			name:    "set without value",
			input:   "SET mykey",
			wantErr: true,
		},
		{
			name:    "set with extra tokens",
			input:   "SET mykey myvalue extra",
			wantErr: true,
		},
		{
			name:    "set with invalid ttl",
			input:   "SET mykey myvalue TTL soon",
			wantErr: true,
		},
		{
			name:    "set with negative ttl",
			input:   "SET mykey myvalue TTL -5s",
			wantErr: true,
		},
		{
			name:    "unterminated quote",
			input:   `SET mykey "oops`,
			wantErr: true,
		},
		{
			name:    "exit with extra tokens",
			input:   "EXIT now",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.input)

			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if !reflect.DeepEqual(result, tt.expected) {
					t.Errorf("Parse() got = %+v, want %+v", result, tt.expected)
				}
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple",
			input: "GET k1 k2",
			want:  []string{"GET", "k1", "k2"},
		},
		{
			name:  "extra spaces",
			input: "  GET   k1    k2 ",
			want:  []string{"GET", "k1", "k2"},
		},
		{
			name:  "quoted span",
			input: `SET k "a b c"`,
			want:  []string{"SET", "k", "a b c"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokenize(tt.input)
			if err != nil {
				t.Fatalf("tokenize() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tokenize() = %v, want %v", got, tt.want)
			}
		})
	}
}
