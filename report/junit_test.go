package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const junitFixture = `<?xml version="1.0" encoding="utf-8"?>
<testsuites>
  <testsuite name="unit" tests="4" failures="1" errors="0" skipped="1" time="1.5">
    <testcase classname="widgets.test_api" name="test_create" time="0.4"/>
    <testcase classname="widgets.test_api" name="test_delete" time="0.6">
      <failure message="assert 404 == 200">Traceback (most recent call last):
  assert resp.status == 200</failure>
    </testcase>
    <testcase classname="widgets.test_api" name="test_update" time="0.3"/>
    <testcase classname="widgets.test_api" name="test_legacy" time="0.2">
      <skipped message="deprecated"/>
    </testcase>
  </testsuite>
</testsuites>`

func TestParseJUnit(t *testing.T) {
	r, err := ParseJUnit(strings.NewReader(junitFixture))
	require.NoError(t, err)

	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 2, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 0, r.Errored)
	assert.Equal(t, 1, r.Skipped)
	assert.False(t, r.Ok())

	require.Len(t, r.Failures, 1)
	assert.Equal(t, "test_delete", r.Failures[0].Name)
	assert.Equal(t, "widgets.test_api", r.Failures[0].Classname)
	assert.Equal(t, "assert 404 == 200", r.Failures[0].Message)
	assert.Contains(t, r.Failures[0].Output, "Traceback")
}

func TestParseJUnitBareSuite(t *testing.T) {
	fixture := `<testsuite name="unit" tests="1" time="0.1">
  <testcase classname="t" name="test_ok" time="0.1"/>
</testsuite>`

	r, err := ParseJUnit(strings.NewReader(fixture))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Total)
	assert.Equal(t, 1, r.Passed)
	assert.True(t, r.Ok())
}

func TestParseJUnitErrors(t *testing.T) {
	fixture := `<testsuites>
  <testsuite name="unit">
    <testcase classname="t" name="test_boom">
      <error message="import failed"/>
    </testcase>
  </testsuite>
</testsuites>`

	r, err := ParseJUnit(strings.NewReader(fixture))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Errored)
	assert.False(t, r.Ok())
	require.Len(t, r.Failures, 1)
	assert.Equal(t, "import failed", r.Failures[0].Message)
}

func TestParseJUnitGarbage(t *testing.T) {
	_, err := ParseJUnit(strings.NewReader("not xml"))
	assert.Error(t, err)
}
