package hosts

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	data := []byte(`
hosts:
  - name: prod
    address: 10.0.0.1
    username: root
    password: secret
    container: bot
  - name: staging
    address: 10.0.0.2
    username: deploy
`)
	entries, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Name != "prod" || entries[0].Container != "bot" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Password != "" {
		t.Errorf("staging password = %q, want empty", entries[1].Password)
	}
}

func TestParseMissingFields(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"no name", "hosts:\n  - address: 10.0.0.1\n    username: root\n", "name is required"},
		{"no address", "hosts:\n  - name: prod\n    username: root\n", "address is required"},
		{"no username", "hosts:\n  - name: prod\n    address: 10.0.0.1\n", "username is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("hosts: [not: valid")); err == nil {
		t.Fatal("want parse error")
	}
}
