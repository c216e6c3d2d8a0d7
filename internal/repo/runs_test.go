package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolsValue(t *testing.T) {
	assert.Nil(t, symbolsValue(nil))
	assert.Nil(t, symbolsValue([]string{}))
	assert.Equal(t, "AAPL", symbolsValue([]string{"AAPL"}))
	assert.Equal(t, "AAPL,MSFT", symbolsValue([]string{"AAPL", "MSFT"}))
}

func TestNew_RequiresDBConn(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}
