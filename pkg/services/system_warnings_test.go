package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemWarnings_AddAndGet(t *testing.T) {
	svc := NewSystemWarningsService()

	id := svc.AddWarning(WarningCategoryMCPHealth, "Server unreachable", "connection refused", "kubernetes-server")
	assert.NotEmpty(t, id)

	warnings := svc.GetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningCategoryMCPHealth, warnings[0].Category)
	assert.Equal(t, "Server unreachable", warnings[0].Message)
	assert.Equal(t, "connection refused", warnings[0].Details)
	assert.Equal(t, "kubernetes-server", warnings[0].ServerID)
	assert.False(t, warnings[0].CreatedAt.IsZero())
}

func TestSystemWarnings_ClearByServerID(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryMCPHealth, "Server unreachable", "", "kubernetes-server")
	svc.AddWarning(WarningCategoryMCPHealth, "Server unreachable", "", "github-server")
	assert.Len(t, svc.GetWarnings(), 2)

	assert.True(t, svc.ClearByServerID(WarningCategoryMCPHealth, "kubernetes-server"))

	remaining := svc.GetWarnings()
	require.Len(t, remaining, 1)
	assert.Equal(t, "github-server", remaining[0].ServerID)

	assert.False(t, svc.ClearByServerID(WarningCategoryMCPHealth, "unknown-server"))
}

func TestSystemWarnings_ReplacesDuplicateForSameServer(t *testing.T) {
	svc := NewSystemWarningsService()

	svc.AddWarning(WarningCategoryMCPHealth, "First error", "err1", "kubernetes-server")
	svc.AddWarning(WarningCategoryMCPHealth, "Second error", "err2", "kubernetes-server")

	warnings := svc.GetWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Second error", warnings[0].Message)
	assert.Equal(t, "err2", warnings[0].Details)
}

func TestSystemWarnings_GetReturnsCopies(t *testing.T) {
	svc := NewSystemWarningsService()
	svc.AddWarning(WarningCategoryMCPHealth, "original", "", "kubernetes-server")

	svc.GetWarnings()[0].Message = "mutated"

	assert.Equal(t, "original", svc.GetWarnings()[0].Message)
}

func TestSystemWarnings_Empty(t *testing.T) {
	assert.Empty(t, NewSystemWarningsService().GetWarnings())
}

func TestSystemWarnings_ConcurrentAccess(t *testing.T) {
	svc := NewSystemWarningsService()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.AddWarning("test", "msg", "", "")
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.GetWarnings()
		}()
	}

	wg.Wait()
	assert.NotNil(t, svc.GetWarnings())
}
