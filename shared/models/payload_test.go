package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcs-server/shared/models"
)

func TestDeriveReadingLevel(t *testing.T) {
	assert.Equal(t, "3-5", models.DeriveReadingLevel(models.Brief{Child: models.Child{Age: 4}}))
	assert.Equal(t, "6-8", models.DeriveReadingLevel(models.Brief{Child: models.Child{Age: 7}}))
	assert.Equal(t, "9-12", models.DeriveReadingLevel(models.Brief{Child: models.Child{Age: 11}}))
	assert.Equal(t, "9-12", models.DeriveReadingLevel(models.Brief{Child: models.Child{Age: 4}, ReadingLevel: "9-12"}))
}

func TestDeriveConstraints(t *testing.T) {
	c := models.DeriveConstraints(models.Brief{Child: models.Child{Age: 3}, AvoidTopics: []string{"dogs"}})
	assert.Equal(t, []string{"dogs"}, c.ExcludedTopics)
	assert.Equal(t, 16, c.MaxPages)

	c = models.DeriveConstraints(models.Brief{Child: models.Child{Age: 9}})
	assert.Empty(t, c.ExcludedTopics)
	assert.NotNil(t, c.ExcludedTopics)
	assert.Equal(t, 24, c.MaxPages)
}

func TestUploadRole(t *testing.T) {
	assert.Equal(t, models.AssetRoleChild, models.Upload{Usage: "child_photo"}.Role())
	assert.Equal(t, models.AssetRoleSupporting, models.Upload{Usage: "supporting_character"}.Role())
	assert.Equal(t, models.AssetRoleLocation, models.Upload{Usage: "location"}.Role())
}

func TestOrderBriefPayload(t *testing.T) {
	brief := &models.OrderBrief{RawPayload: []byte(`{"version":"2024-06","brief":{"child":{"name":"Mia","age":6}}}`)}
	p, err := brief.Payload()
	require.NoError(t, err)
	assert.Equal(t, "Mia", p.Brief.Child.Name)

	_, err = (&models.OrderBrief{RawPayload: []byte(`{`)}).Payload()
	assert.Error(t, err)
}

func TestOrderNumber(t *testing.T) {
	assert.Equal(t, "KCS-000123", (&models.Order{Number: 123}).OrderNumber())
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two.", "Three."}, models.SplitParagraphs("One.\n\nTwo.\n  \nThree.\n", 24))
	assert.Empty(t, models.SplitParagraphs("   ", 24))

	text := ""
	for i := 0; i < 30; i++ {
		text += "Line.\n\n"
	}
	parts := models.SplitParagraphs(text, 24)
	assert.LessOrEqual(t, len(parts), 24)
	assert.Equal(t, "Line.\n\nLine.", parts[0])
}

func TestPartnerWebhookSigningSecret(t *testing.T) {
	p := &models.Partner{SigningSecret: "sign"}
	assert.Equal(t, "sign", p.WebhookSigningSecret())
	p.WebhookSecret = models.StringPtr("")
	assert.Equal(t, "sign", p.WebhookSigningSecret())
	p.WebhookSecret = models.StringPtr("hook")
	assert.Equal(t, "hook", p.WebhookSigningSecret())
}
