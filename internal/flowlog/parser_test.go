package flowlog

import (
	"testing"
	"time"
)

func TestParseTupleLegacyFormat(t *testing.T) {
	tuple := "1705312800,10.0.0.4,13.107.42.14,49152,443,T,O,A,B,1,100,1,200"
	rec, err := ParseTuple(tuple, TupleContext{Rule: "AllowOutbound", MAC: "000D3AF87856", Version: 2})
	if err != nil {
		t.Fatalf("ParseTuple failed: %v", err)
	}

	if rec.Protocol != "TCP" {
		t.Errorf("Expected protocol TCP, got %q", rec.Protocol)
	}
	if rec.Direction != "Outbound" {
		t.Errorf("Expected direction Outbound, got %q", rec.Direction)
	}
	if rec.Action != "Allowed" {
		t.Errorf("Expected action Allowed, got %q", rec.Action)
	}
	if rec.FlowState != "Begin" {
		t.Errorf("Expected flow state Begin, got %q", rec.FlowState)
	}
	if rec.TotalBytes != 300 {
		t.Errorf("Expected 300 total bytes, got %d", rec.TotalBytes)
	}
	if rec.TotalPackets != 2 {
		t.Errorf("Expected 2 total packets, got %d", rec.TotalPackets)
	}

	// 10-digit epoch must be read as seconds.
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, rec.Timestamp)
	}

	if rec.Rule != "AllowOutbound" || rec.MAC != "000D3AF87856" {
		t.Errorf("Context metadata not carried through: %+v", rec)
	}
}

func TestParseTupleNewerFormat(t *testing.T) {
	tuple := "1770152393932,10.2.0.15,20.62.132.27,53312,443,6,O,E,NX,15,3027,17,10709"
	rec, err := ParseTuple(tuple, TupleContext{Rule: "BlockHighRisk", Version: 4})
	if err != nil {
		t.Fatalf("ParseTuple failed: %v", err)
	}

	if rec.Protocol != "TCP" {
		t.Errorf("Expected protocol TCP for code 6, got %q", rec.Protocol)
	}
	if rec.Action != "End" {
		t.Errorf("Expected action End, got %q", rec.Action)
	}
	if rec.FlowState != "No Encryption" {
		t.Errorf("Expected flow state 'No Encryption', got %q", rec.FlowState)
	}
	if rec.TotalBytes != 13736 {
		t.Errorf("Expected 13736 total bytes, got %d", rec.TotalBytes)
	}
	if rec.TotalPackets != 32 {
		t.Errorf("Expected 32 total packets, got %d", rec.TotalPackets)
	}

	// 13-digit epoch must be read as milliseconds, sub-second part intact.
	if !rec.Timestamp.Equal(time.UnixMilli(1770152393932)) {
		t.Errorf("Expected millisecond timestamp, got %v", rec.Timestamp)
	}
	if rec.Timestamp.Nanosecond() != 932000000 {
		t.Errorf("Millisecond fraction lost: %v", rec.Timestamp)
	}
}

func TestParseEpochUnits(t *testing.T) {
	cases := []struct {
		name  string
		field string
		want  time.Time
	}{
		{"seconds", "1705312800", time.Unix(1705312800, 0).UTC()},
		{"milliseconds", "1770152393932", time.UnixMilli(1770152393932).UTC()},
		{"microseconds", "1770152393932123", time.UnixMilli(1770152393932).UTC()},
	}

	for _, tc := range cases {
		got, err := parseEpoch(tc.field)
		if err != nil {
			t.Fatalf("%s: parseEpoch(%q) failed: %v", tc.name, tc.field, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: parseEpoch(%q) = %v, want %v", tc.name, tc.field, got, tc.want)
		}
	}

	if _, err := parseEpoch("not-a-number"); err == nil {
		t.Error("Expected error for non-numeric epoch")
	}
}

func TestParseTupleCounterRoundTrip(t *testing.T) {
	tuples := []string{
		"1705312800,10.0.0.4,8.8.8.8,1234,53,U,O,A,B,3,300,4,400",
		"1705312800,10.0.0.4,8.8.8.8,1234,53,U,O,A,B,0,0,0,0",
		"1705312800,10.0.0.4,8.8.8.8,1234,53,U,O,A,B",
		"1705312800,10.0.0.4,8.8.8.8,1234,53,U,O,A,B,7,,,",
	}

	for _, tuple := range tuples {
		rec, err := ParseTuple(tuple, TupleContext{})
		if err != nil {
			t.Fatalf("ParseTuple(%q) failed: %v", tuple, err)
		}
		if rec.TotalBytes != rec.BytesSrcToDst+rec.BytesDstToSrc {
			t.Errorf("TotalBytes %d does not equal counter sum for %q", rec.TotalBytes, tuple)
		}
		if rec.TotalPackets != rec.PacketsSrcToDst+rec.PacketsDstToSrc {
			t.Errorf("TotalPackets %d does not equal counter sum for %q", rec.TotalPackets, tuple)
		}
	}
}

func TestParseTupleMappingPassthrough(t *testing.T) {
	// Unknown protocol, direction, action and state codes must survive
	// verbatim rather than fail.
	tuple := "1705312800,10.0.0.4,8.8.8.8,1234,53,47,X,Q,ZZ"
	rec, err := ParseTuple(tuple, TupleContext{})
	if err != nil {
		t.Fatalf("ParseTuple failed: %v", err)
	}
	if rec.Protocol != "47" {
		t.Errorf("Expected opaque protocol 47, got %q", rec.Protocol)
	}
	if rec.Direction != "X" {
		t.Errorf("Expected opaque direction X, got %q", rec.Direction)
	}
	if rec.Action != "Q" {
		t.Errorf("Expected opaque action Q, got %q", rec.Action)
	}
	if rec.FlowState != "ZZ" {
		t.Errorf("Expected opaque flow state ZZ, got %q", rec.FlowState)
	}
}

func TestParseTupleMappingTables(t *testing.T) {
	cases := []struct {
		field int
		code  string
		want  string
	}{
		{5, "T", "TCP"},
		{5, "U", "UDP"},
		{5, "6", "TCP"},
		{5, "17", "UDP"},
		{5, "1", "ICMP"},
		{6, "I", "Inbound"},
		{6, "O", "Outbound"},
		{7, "A", "Allowed"},
		{7, "D", "Denied"},
		{7, "B", "Begin"},
		{7, "C", "Continuing"},
		{7, "E", "End"},
	}

	for _, tc := range cases {
		fields := []string{"1705312800", "10.0.0.4", "8.8.8.8", "1", "2", "T", "O", "A"}
		fields[tc.field] = tc.code
		rec, err := ParseTuple(join(fields), TupleContext{})
		if err != nil {
			t.Fatalf("ParseTuple failed for code %q: %v", tc.code, err)
		}
		var got string
		switch tc.field {
		case 5:
			got = rec.Protocol
		case 6:
			got = rec.Direction
		case 7:
			got = rec.Action
		}
		if got != tc.want {
			t.Errorf("Field %d code %q: expected %q, got %q", tc.field, tc.code, tc.want, got)
		}
	}
}

func TestParseTupleMalformed(t *testing.T) {
	cases := []string{
		"1705312800,10.0.0.4,8.8.8.8,1234,53",          // 5 fields
		"",                                             // empty
		"nope,10.0.0.4,8.8.8.8,1234,53,T,O,A",          // bad epoch
		"1705312800,10.0.0.4,8.8.8.8,xx,53,T,O,A",      // bad port
		"1705312800,10.0.0.4,8.8.8.8,1234,53,T,O,A,B,x", // bad counter
	}

	for _, tuple := range cases {
		if _, err := ParseTuple(tuple, TupleContext{}); err == nil {
			t.Errorf("Expected error for malformed tuple %q", tuple)
		}
	}
}

func TestParseTupleEmptyPortsDefaultToZero(t *testing.T) {
	rec, err := ParseTuple("1705312800,10.0.0.4,8.8.8.8,,,1,I,A", TupleContext{})
	if err != nil {
		t.Fatalf("ParseTuple failed: %v", err)
	}
	if rec.SrcPort != 0 || rec.DstPort != 0 {
		t.Errorf("Expected zero ports, got %d and %d", rec.SrcPort, rec.DstPort)
	}
}

func join(fields []string) string {
	out := fields[0]
	for _, f := range fields[1:] {
		out += "," + f
	}
	return out
}
