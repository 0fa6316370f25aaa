package flowlog

import (
	"testing"
)

const vnetDocument = `{
  "records": [
    {
      "time": "2026-02-03T21:00:00.0000000Z",
      "flowLogVersion": 4,
      "flowLogResourceID": "/SUBSCRIPTIONS/XXX/FLOWLOGS/VNET-FL",
      "macAddress": "6045BDF20C12",
      "category": "FlowLogFlowEvent",
      "flowRecords": {
        "flows": [
          {
            "aclID": "00000000-1111-2222-3333-444444444444",
            "flowGroups": [
              {
                "rule": "DefaultRule_AllowInternetOutBound",
                "flowTuples": "1770152393932,10.2.0.15,20.62.132.27,53312,443,6,O,B,NX 1770152394100,10.2.0.15,20.62.132.27,53312,443,6,O,E,NX,15,3027,17,10709"
              },
              {
                "rule": "BlockScanner",
                "flowTuples": "1770152395000,92.118.160.10,10.2.0.15,55000,3389,6,I,D,NX"
              }
            ]
          }
        ]
      }
    }
  ]
}`

const nsgDocument = `{
  "records": [
    {
      "time": "2024-01-15T10:00:00.0000000Z",
      "resourceId": "/SUBSCRIPTIONS/XXX/NETWORKSECURITYGROUPS/WEB-NSG",
      "category": "NetworkSecurityGroupFlowEvent",
      "properties": {
        "Version": 2,
        "flows": [
          {
            "rule": "DefaultRule_AllowVnetOutBound",
            "flows": [
              {
                "mac": "000D3AF87856",
                "flowTuples": [
                  "1705312800,10.0.0.4,13.107.42.14,49152,443,T,O,A,B,1,100,1,200",
                  "1705312801,10.0.0.4,13.107.42.14,49153,443,T,O,A,E,10,1200,8,5400"
                ]
              }
            ]
          }
        ]
      }
    }
  ]
}`

func TestExtractVNETShape(t *testing.T) {
	doc, err := DecodeDocument([]byte(vnetDocument))
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}

	records := doc.Extract()
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	first := records[0]
	if first.Rule != "DefaultRule_AllowInternetOutBound" {
		t.Errorf("Expected group rule on record, got %q", first.Rule)
	}
	if first.MAC != "6045BDF20C12" {
		t.Errorf("Expected record-level MAC, got %q", first.MAC)
	}
	if first.ResourceID != "/SUBSCRIPTIONS/XXX/FLOWLOGS/VNET-FL" {
		t.Errorf("flowLogResourceID not picked up: %q", first.ResourceID)
	}
	if first.FlowLogVersion != 4 {
		t.Errorf("Expected version 4, got %d", first.FlowLogVersion)
	}

	denied := records[2]
	if denied.Rule != "BlockScanner" || denied.Action != "Denied" || denied.Direction != "Inbound" {
		t.Errorf("Second group not parsed with its own context: %+v", denied)
	}
}

func TestExtractNSGShape(t *testing.T) {
	doc, err := DecodeDocument([]byte(nsgDocument))
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}

	records := doc.Extract()
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Rule != "DefaultRule_AllowVnetOutBound" {
		t.Errorf("Rule must come from the outer flow object, got %q", first.Rule)
	}
	if first.MAC != "000D3AF87856" {
		t.Errorf("MAC must come from the inner group, got %q", first.MAC)
	}
	if first.ResourceID != "/SUBSCRIPTIONS/XXX/NETWORKSECURITYGROUPS/WEB-NSG" {
		t.Errorf("resourceId not picked up: %q", first.ResourceID)
	}
	if first.FlowLogVersion != 2 {
		t.Errorf("Expected version 2, got %d", first.FlowLogVersion)
	}
	if first.Protocol != "TCP" || first.TotalBytes != 300 {
		t.Errorf("Tuple not parsed: %+v", first)
	}
}

func TestExtractNSGShapeWithStringTuples(t *testing.T) {
	// flowTuples in the legacy shape may arrive as one space-separated
	// string instead of an array; both must decode.
	doc := `{"records":[{"properties":{"flows":[{"rule":"R1","flows":[{"mac":"AA",
		"flowTuples":"1705312800,10.0.0.4,8.8.8.8,1,2,T,O,A 1705312801,10.0.0.5,8.8.4.4,3,4,U,I,D"}]}]}}]}`

	d, err := DecodeDocument([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	records := d.Extract()
	if len(records) != 2 {
		t.Fatalf("Expected 2 records from string-encoded tuples, got %d", len(records))
	}
	if records[0].FlowLogVersion != 2 {
		t.Errorf("Expected default version 2 for legacy shape, got %d", records[0].FlowLogVersion)
	}
}

func TestExtractSkipsMalformedTuples(t *testing.T) {
	// One tuple out of ten is short; exactly nine records must survive.
	tuples := `[
		"1705312800,10.0.0.1,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.2,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.3,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.4,8.8.8.8,1,2,T,O,A",
		"1705312800,short",
		"1705312800,10.0.0.6,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.7,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.8,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.9,8.8.8.8,1,2,T,O,A",
		"1705312800,10.0.0.10,8.8.8.8,1,2,T,O,A"
	]`
	doc := `{"records":[{"properties":{"flows":[{"rule":"R","flows":[{"mac":"AA","flowTuples":` + tuples + `}]}]}}]}`

	d, err := DecodeDocument([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	records := d.Extract()
	if len(records) != 9 {
		t.Fatalf("Expected 9 surviving records, got %d", len(records))
	}
}

func TestExtractSkipsUnknownShapes(t *testing.T) {
	// A record matching neither shape is dropped; its neighbors are kept.
	doc := `{"records":[
		{"category":"Heartbeat"},
		{"properties":{"flows":[{"rule":"R","flows":[{"mac":"AA","flowTuples":["1705312800,10.0.0.4,8.8.8.8,1,2,T,O,A"]}]}]}}
	]}`

	d, err := DecodeDocument([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if got := len(d.Extract()); got != 1 {
		t.Fatalf("Expected 1 record from the recognizable entry, got %d", got)
	}
}

func TestDecodeDocumentMalformed(t *testing.T) {
	if _, err := DecodeDocument([]byte("{not json")); err == nil {
		t.Fatal("Expected error for malformed document")
	}
}

func TestEncodeShapeARoundTrip(t *testing.T) {
	doc, err := DecodeDocument([]byte(nsgDocument))
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	records := doc.Extract()

	data, err := EncodeShapeA(records, "/SUBSCRIPTIONS/XXX/FLOWLOGS/GEN", "60AABBCCDDEE")
	if err != nil {
		t.Fatalf("EncodeShapeA failed: %v", err)
	}

	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("Encoded document does not decode: %v", err)
	}
	out := decoded.Extract()
	if len(out) != len(records) {
		t.Fatalf("Expected %d records after round trip, got %d", len(records), len(out))
	}
	for i := range out {
		if out[i].SrcIP != records[i].SrcIP || out[i].TotalBytes != records[i].TotalBytes {
			t.Errorf("Record %d changed in round trip: %+v vs %+v", i, out[i], records[i])
		}
		if out[i].FlowLogVersion != 4 {
			t.Errorf("Encoded document must carry version 4, got %d", out[i].FlowLogVersion)
		}
	}
}
