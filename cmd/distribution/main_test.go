package main

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureRun(t *testing.T, args []string) (int, string) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "distribution-out")
	require.NoError(t, err)
	defer f.Close()

	code := run(args, f)

	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	var sb strings.Builder
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	return code, sb.String()
}

func TestRunPrintsNSamples(t *testing.T) {
	code, out := captureRun(t, []string{"100", "1.2", "10"})
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 10)
}

func TestRunRejectsNonPositiveNumElements(t *testing.T) {
	code, _ := captureRun(t, []string{"0", "1.2", "10"})
	require.Equal(t, 1, code)
}

func TestRunRejectsNonPositiveN(t *testing.T) {
	code, _ := captureRun(t, []string{"100", "1.2", "0"})
	require.Equal(t, 1, code)
}

func TestRunRejectsWrongArgCount(t *testing.T) {
	code, _ := captureRun(t, []string{"100", "1.2"})
	require.Equal(t, 1, code)
}

func TestRunRejectsNonPositiveExponent(t *testing.T) {
	code, _ := captureRun(t, []string{"100", "0", "10"})
	require.Equal(t, 1, code)
}
