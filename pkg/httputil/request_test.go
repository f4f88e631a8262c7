package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"module":"projects"}`))
	var dest struct {
		Module string `json:"module"`
	}

	err := ParseJSON(r, &dest)

	assert.NoError(t, err)
	assert.Equal(t, "projects", dest.Module)
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"module":"projects","bogus":1}`))
	var dest struct {
		Module string `json:"module"`
	}

	err := ParseJSON(r, &dest)

	assert.Error(t, err)
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(`not json`))
	var dest struct{}

	ok := ParseJSONOrError(w, r, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPathString(t *testing.T) {
	r := httptest.NewRequest("GET", "/modules/projects", nil)
	r = mux.SetURLVars(r, map[string]string{"module": "projects"})

	val, err := PathString(r, "module")

	assert.NoError(t, err)
	assert.Equal(t, "projects", val)
}

func TestPathStringMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/modules", nil)

	_, err := PathString(r, "module")

	assert.Error(t, err)
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25", nil)

	val, err := QueryInt(r, "limit", 10)

	assert.NoError(t, err)
	assert.Equal(t, 25, val)
}

func TestQueryIntDefault(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	val, err := QueryInt(r, "limit", 10)

	assert.NoError(t, err)
	assert.Equal(t, 10, val)
}

func TestQueryIntInvalid(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=abc", nil)

	_, err := QueryInt(r, "limit", 10)

	assert.Error(t, err)
}

func TestQueryBool(t *testing.T) {
	r := httptest.NewRequest("GET", "/?active=true", nil)

	val, err := QueryBool(r, "active", false)

	assert.NoError(t, err)
	assert.True(t, val)
}

func TestQueryString(t *testing.T) {
	r := httptest.NewRequest("GET", "/?template=read_only", nil)

	assert.Equal(t, "read_only", QueryString(r, "template", "default"))
	assert.Equal(t, "default", QueryString(r, "missing", "default"))
}
