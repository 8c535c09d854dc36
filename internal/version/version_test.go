package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, Version+" (commit unknown, built unknown)", String())
	assert.Equal(t, "incidentctl/"+Version, UserAgent())
}
