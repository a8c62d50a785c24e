package launcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineWriterJoinsPartialWrites(t *testing.T) {
	var out bytes.Buffer
	mux := newOutputMux("job", false)

	first := mux.writer(&out, 0, "stdout")
	second := mux.writer(&out, 1, "stdout")

	_, err := first.Write([]byte("Hello from "))
	require.NoError(t, err)
	_, err = second.Write([]byte("Hello from processor 1 of 2\n"))
	require.NoError(t, err)
	_, err = first.Write([]byte("processor 0 of 2\nno newline"))
	require.NoError(t, err)

	assert.Equal(t, "Hello from processor 1 of 2\nHello from processor 0 of 2\n", out.String())

	require.NoError(t, mux.Flush())
	assert.Equal(t, "Hello from processor 1 of 2\nHello from processor 0 of 2\nno newline\n", out.String())

	require.NoError(t, mux.Flush())
	assert.Equal(t, 3, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestLineWriterTags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	mux := newOutputMux("a1b2", true)

	_, err := mux.writer(&stdout, 3, "stdout").Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	_, err = mux.writer(&stderr, 3, "stderr").Write([]byte("oops\n"))
	require.NoError(t, err)

	assert.Equal(t, "[a1b2,3]<stdout>:one\n[a1b2,3]<stdout>:two\n", stdout.String())
	assert.Equal(t, "[a1b2,3]<stderr>:oops\n", stderr.String())
}
