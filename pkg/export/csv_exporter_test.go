package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRender(t *testing.T) {
	exporter := NewCSVExporter()

	data, err := exporter.Render(Dataset{
		Headers: []string{"nisn", "full_name", "status"},
		Rows: []map[string]string{
			{"nisn": "0051234567", "full_name": "Siti Aminah", "status": "VERIFIED"},
			{"nisn": "0051234568", "full_name": "Agus, Salim", "status": "PENDING"},
		},
	})
	require.NoError(t, err)
	out := string(data)
	assert.Equal(t, "nisn,full_name,status\n0051234567,Siti Aminah,VERIFIED\n0051234568,\"Agus, Salim\",PENDING\n", out)
}

func TestCSVRenderMissingColumnLeftEmpty(t *testing.T) {
	exporter := NewCSVExporter()

	data, err := exporter.Render(Dataset{
		Headers: []string{"nisn", "full_name"},
		Rows:    []map[string]string{{"nisn": "0051234567"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "nisn,full_name\n0051234567,\n", string(data))
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()

	_, err := exporter.Render(Dataset{})
	assert.Error(t, err)
}
