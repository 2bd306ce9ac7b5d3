package models_test

import (
	"errors"
	"testing"

	"kcs-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderedStatuses = []models.PrintStatus{
	models.PrintStatusNone,
	models.PrintStatusCoverGenerated,
	models.PrintStatusInteriorGenerated,
	models.PrintStatusCMYKConverted,
	models.PrintStatusAssembled,
}

var terminalStatuses = []models.PrintStatus{
	models.PrintStatusCompleted,
	models.PrintStatusPartialUpload,
	models.PrintStatusUploadFailed,
}

func TestValidateTransition_ForwardOnly(t *testing.T) {
	all := append(append([]models.PrintStatus{}, orderedStatuses...), terminalStatuses...)

	for _, from := range all {
		for _, to := range all {
			err := models.ValidateTransition(from, to)
			switch {
			case from == to:
				assert.NoError(t, err, "%q -> %q", from, to)
			case to.Rank() > from.Rank():
				assert.NoError(t, err, "%q -> %q", from, to)
			default:
				require.Error(t, err, "%q -> %q", from, to)
				assert.True(t, errors.Is(err, models.ErrBackwardTransition))
			}
		}
	}
}

func TestValidateTransition_AssembledNeverRevertsToCover(t *testing.T) {
	err := models.ValidateTransition(models.PrintStatusAssembled, models.PrintStatusCoverGenerated)
	assert.ErrorIs(t, err, models.ErrBackwardTransition)
}

func TestValidateTransition_TerminalStatesAreExclusive(t *testing.T) {
	assert.Error(t, models.ValidateTransition(models.PrintStatusCompleted, models.PrintStatusUploadFailed))
	assert.Error(t, models.ValidateTransition(models.PrintStatusPartialUpload, models.PrintStatusCompleted))
	assert.NoError(t, models.ValidateTransition(models.PrintStatusAssembled, models.PrintStatusUploadFailed))
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	err := models.ValidateTransition(models.PrintStatus("bogus"), models.PrintStatusAssembled)
	assert.ErrorIs(t, err, models.ErrBackwardTransition)
}

func TestPrintStatus_Reached(t *testing.T) {
	assert.True(t, models.PrintStatusCMYKConverted.Reached(models.PrintStatusCoverGenerated))
	assert.False(t, models.PrintStatusCoverGenerated.Reached(models.PrintStatusAssembled))
	assert.True(t, models.PrintStatusUploadFailed.Reached(models.PrintStatusCompleted))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, models.IsTerminal(models.NewIntegrityError("story.cmyk", "front cover")))
	assert.True(t, models.IsTerminal(models.ErrNotFound))
	assert.False(t, models.IsTerminal(models.ErrTransient))
	assert.False(t, models.IsTerminal(nil))
}
