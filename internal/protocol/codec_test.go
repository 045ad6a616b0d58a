package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		command string
		fields  map[string]string
	}{
		{
			name:    "bidder message",
			command: "bidder",
			fields:  map[string]string{"draft": "1", "name": "Sam", "budget": "200"},
		},
		{
			name:    "status message",
			command: "status",
			fields:  map[string]string{"draft": "1", "auctionId": "7", "timer": "15", "bidderId": "3", "bid": "42"},
		},
		{
			name:    "single field",
			command: "start",
			fields:  map[string]string{"timer": "30"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, err := Encode(tc.command, tc.fields)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if !strings.HasSuffix(line, "\n") {
				t.Errorf("encoded line missing newline: %q", line)
			}

			msg, err := Decode(line)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if msg.Command != tc.command {
				t.Errorf("command = %q, want %q", msg.Command, tc.command)
			}
			if len(msg.Fields) != len(tc.fields) {
				t.Fatalf("got %d fields, want %d", len(msg.Fields), len(tc.fields))
			}
			for k, want := range tc.fields {
				if got := msg.Fields[k]; got != want {
					t.Errorf("field %s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{name: "bare command", line: "garbage"},
		{name: "command with trailing space", line: "garbage "},
		{name: "token without equals", line: "status draft"},
		{name: "empty key", line: "status =5"},
		{name: "empty line", line: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.line)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("Decode(%q) err = %v, want ErrMalformedMessage", tc.line, err)
			}
		})
	}
}

func TestDecodeDuplicateKeyLastWins(t *testing.T) {
	msg, err := Decode("status draft=1 timer=5 timer=9\n")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := msg.Fields["timer"]; got != "9" {
		t.Errorf("timer = %q, want last occurrence %q", got, "9")
	}
}

func TestDecodeNoCoercion(t *testing.T) {
	// Values stay text; the dispatcher owns typing.
	msg, err := Decode("start draft=1 timer=notanumber")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := msg.Fields["timer"]; got != "notanumber" {
		t.Errorf("timer = %q, want raw text", got)
	}
}

func TestEncodeRejectsUnsafeValues(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
	}{
		{name: "value with space", fields: map[string]string{"name": "Sam Smith"}},
		{name: "value with equals", fields: map[string]string{"name": "a=b"}},
		{name: "key with space", fields: map[string]string{"bad key": "v"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode("bidder", tc.fields); !errors.Is(err, ErrMalformedMessage) {
				t.Fatalf("Encode err = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestDecodeHandlesExtraWhitespace(t *testing.T) {
	msg, err := Decode("stop  draft=1   auctionId=7 \r\n")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Command != "stop" {
		t.Errorf("command = %q, want stop", msg.Command)
	}
	if msg.Fields["draft"] != "1" || msg.Fields["auctionId"] != "7" {
		t.Errorf("unexpected fields: %v", msg.Fields)
	}
}
