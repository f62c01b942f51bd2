package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/certiflow/certiflow/internal/common"
)

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name       string
		descriptor Descriptor
		wantErr    bool
	}{
		{
			name:       "valid",
			descriptor: certificateDescriptor(),
			wantErr:    false,
		},
		{
			name:       "no name",
			descriptor: Descriptor{Mappings: []Mapping{{Field: "name", Cell: "Sheet1!B2"}}},
			wantErr:    true,
		},
		{
			name:       "no mappings",
			descriptor: Descriptor{Name: "empty"},
			wantErr:    true,
		},
		{
			name: "duplicate field",
			descriptor: Descriptor{Name: "dup", Mappings: []Mapping{
				{Field: "name", Cell: "Sheet1!B2"},
				{Field: "name", Cell: "Sheet1!B3"},
			}},
			wantErr: true,
		},
		{
			name: "cell without sheet",
			descriptor: Descriptor{Name: "bad", Mappings: []Mapping{
				{Field: "name", Cell: "B2"},
			}},
			wantErr: true,
		},
		{
			name: "unparseable cell",
			descriptor: Descriptor{Name: "bad", Mappings: []Mapping{
				{Field: "name", Cell: "Sheet1!notacell"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.descriptor.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptorTemplateFile(t *testing.T) {
	d := Descriptor{Name: "certificate"}
	if got := d.TemplateFile(); got != "certificate.xlsx" {
		t.Errorf("TemplateFile = %q, want certificate.xlsx", got)
	}
	d.File = "custom.xlsx"
	if got := d.TemplateFile(); got != "custom.xlsx" {
		t.Errorf("TemplateFile = %q, want custom.xlsx", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		format  string
		want    any
		wantErr bool
	}{
		{"no format passthrough string", "Ada", "", "Ada", false},
		{"no format passthrough number", 95.5, "", 95.5, false},
		{"printf number", 95.5, "%.2f", "95.50", false},
		{"printf string", "Ada", "%s", "Ada", false},
		{"time layout", "2026-05-01", "02 Jan 2006", "01 May 2026", false},
		{"time layout on non-date", "Ada", "02 Jan 2006", nil, true},
		{"unsupported type", true, "%v", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatValue(tt.value, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("formatValue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistryLoadsAndSortsDescriptors(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha"} {
		d := Descriptor{Name: name, Mappings: []Mapping{{Field: "name", Cell: "Sheet1!B2"}}}
		data, _ := json.Marshal(d)
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	registry, err := NewRegistry(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	list := registry.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("List = %v, want [alpha zeta]", list)
	}
}

func TestRegistryGetUnknownTemplate(t *testing.T) {
	registry, err := NewRegistry(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = registry.Get("nope")
	if !common.IsKind(err, common.KindTemplateNotFound) {
		t.Errorf("error = %v, want TEMPLATE_NOT_FOUND", err)
	}
}

func TestRegistryRejectsInvalidDescriptor(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"name":"broken","mappings":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRegistry(dir, nil); err == nil {
		t.Error("registry must reject descriptors with no mappings")
	}
}

func TestRegistryDefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	d := Descriptor{Mappings: []Mapping{{Field: "name", Cell: "Sheet1!B2"}}}
	data, _ := json.Marshal(d)
	if err := os.WriteFile(filepath.Join(dir, "invoice.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	registry, err := NewRegistry(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := registry.Get("invoice"); err != nil {
		t.Errorf("descriptor name should default to filename: %v", err)
	}
}
