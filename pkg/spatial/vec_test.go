// ABOUTME: Tests for parsing vectors from flags
// ABOUTME: Covers valid triples and malformed input
package spatial

import "testing"

func TestParseVec3(t *testing.T) {
	tests := []struct {
		in      string
		want    Vec3
		wantErr bool
	}{
		{"1,2,3", Vec3{1, 2, 3}, false},
		{" -1.5, 0 ,2e1", Vec3{-1.5, 0, 20}, false},
		{"0,0,0", Vec3{}, false},
		{"1,2", Vec3{}, true},
		{"1,2,3,4", Vec3{}, true},
		{"a,b,c", Vec3{}, true},
		{"", Vec3{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVec3(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVec3(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseVec3(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
