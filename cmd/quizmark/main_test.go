package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appI18n "github.com/pavelanni/quizmark/internal/i18n"
)

func TestCheckQuiz(t *testing.T) {
	require.NoError(t, appI18n.Init("en"))
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))

	lines, ok := checkQuiz(ctx, "# Primes\n\n## QCM - Pick one [2 points]\n- [x] 2\n- [ ] 4\n")
	assert.True(t, ok)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"Primes"`)
	assert.Contains(t, lines[0], "1 question")

	lines, ok = checkQuiz(ctx, "# Primes\n\n## QCM - Pick one [2 points]\n- [ ] 2\n- [ ] 4\n")
	assert.False(t, ok)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Line 3")
}
