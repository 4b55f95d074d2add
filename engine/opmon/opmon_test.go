package opmon

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperationStats(t *testing.T) {
	for i := 0; i < 3; i++ {
		op := StartOperation("opmon_test.op")
		op.Finish(time.Hour)
	}

	var found bool
	for _, st := range Stats() {
		if st.Name == "opmon_test.op" {
			found = true
			assert.Equal(t, uint64(3), st.Count)
			assert.T(t, st.Max >= st.Avg, "max should not be less than avg")
		}
	}
	assert.T(t, found, "operation not recorded")

	var buf bytes.Buffer
	Dump(&buf)
	assert.T(t, strings.Contains(buf.String(), "opmon_test.op"), "dump should list the operation")
	assert.Equal(t, 0, len(Stats()))
}
