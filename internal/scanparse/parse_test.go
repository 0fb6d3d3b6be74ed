package scanparse

import (
	"reflect"
	"strings"
	"testing"
)

const sampleOutput = `Starting Nmap 7.94 ( https://nmap.org ) at 2024-05-01 10:00 UTC
Nmap scan report for example.com (93.184.216.34)
Host is up (0.012s latency).
Not shown: 98 filtered tcp ports (no-response)
PORT     STATE SERVICE
21/tcp   open  ftp
22/tcp   open  ssh
80/tcp   open  http     Apache httpd 2.4

Nmap done: 1 IP address (1 host up) scanned in 4.21 seconds
`

func TestParseTable_Basic(t *testing.T) {
	got := ParseTable("PORT STATE SERVICE\n21/tcp open ftp\n22/tcp open ssh\n")
	want := []PortRecord{
		{Port: 21, Proto: "tcp", State: "open", Service: "ftp"},
		{Port: 22, Proto: "tcp", State: "open", Service: "ssh"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestParseTable_Empty(t *testing.T) {
	for _, raw := range []string{"", "no header here", "21/tcp open ftp"} {
		if got := ParseTable(raw); len(got) != 0 {
			t.Fatalf("ParseTable(%q) = %+v, want empty", raw, got)
		}
	}
}

func TestParseTable_NmapOutput(t *testing.T) {
	got := ParseTable(sampleOutput)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(got), got)
	}
	// 额外的描述字段被忽略
	if got[2] != (PortRecord{Port: 80, Proto: "tcp", State: "open", Service: "http"}) {
		t.Fatalf("unexpected third record: %+v", got[2])
	}
}

func TestParseTable_SkipsMalformedLines(t *testing.T) {
	raw := strings.Join([]string{
		"PORT STATE SERVICE",
		"not-a-port open ftp",
		"22/tcp open",
		"70000/tcp open big",
		"   ",
		"443/tcp open https",
	}, "\n")
	got := ParseTable(raw)
	want := []PortRecord{{Port: 443, Proto: "tcp", State: "open", Service: "https"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestParseTable_SecondHeaderDoesNotReset(t *testing.T) {
	raw := "PORT STATE SERVICE\n21/tcp open ftp\nbanner in between x\nPORT STATE SERVICE\n53/udp open domain\n"
	got := ParseTable(raw)
	if len(got) != 2 || got[0].Port != 21 || got[1].Port != 53 || got[1].Proto != "udp" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestParseTable_LastOccurrenceWins(t *testing.T) {
	raw := "PORT STATE SERVICE\n22/tcp filtered ssh\n80/tcp open http\n22/tcp open ssh\n22/udp open ssh\n"
	got := ParseTable(raw)
	want := []PortRecord{
		{Port: 22, Proto: "tcp", State: "open", Service: "ssh"},
		{Port: 80, Proto: "tcp", State: "open", Service: "http"},
		{Port: 22, Proto: "udp", State: "open", Service: "ssh"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestParseTable_StateCasePreserved(t *testing.T) {
	got := ParseTable("PORT STATE SERVICE\n8080/tcp OPEN http-proxy\n")
	if len(got) != 1 || got[0].State != "OPEN" {
		t.Fatalf("state must pass through unchanged: %+v", got)
	}
}

func TestParseTable_ExtensionIsSuperset(t *testing.T) {
	lines := strings.Split(strings.TrimRight(sampleOutput, "\n"), "\n")
	var prev map[string]PortRecord
	for i := 1; i <= len(lines); i++ {
		records := ParseTable(strings.Join(lines[:i], "\n"))
		cur := make(map[string]PortRecord, len(records))
		for _, r := range records {
			cur[r.Key()] = r
		}
		for key, old := range prev {
			got, ok := cur[key]
			if !ok {
				t.Fatalf("prefix %d lost record %s", i, key)
			}
			if got != old {
				t.Fatalf("prefix %d changed record %s: %+v -> %+v", i, key, old, got)
			}
		}
		prev = cur
	}
}

func TestRenderTable_RoundTrip(t *testing.T) {
	records := []PortRecord{
		{Port: 21, Proto: "tcp", State: "open", Service: "ftp"},
		{Port: 161, Proto: "udp", State: "open|filtered", Service: "snmp"},
		{Port: 3306, Proto: "tcp", State: "closed", Service: "mysql"},
	}
	got := ParseTable(RenderTable(records))
	if !reflect.DeepEqual(got, records) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, records)
	}
}

func TestAbbreviate(t *testing.T) {
	cases := map[string]string{
		"ssh":           "SSH",
		"HTTP":          "HTTP",
		"ms-wbt-server": "RDP",
		"http?":         "HTTP",
		"minecraft":     "MINE",
		"irc":           "IRC",
		"":              UnknownService,
		"  ":            UnknownService,
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			if got := Abbreviate(in); got != want {
				t.Fatalf("Abbreviate(%q) = %q want %q", in, got, want)
			}
		})
	}
}
