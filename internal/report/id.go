package report

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDPrefix starts every complaint id.
const IDPrefix = "CB"

// IDGenerator hands out time-ordered complaint ids.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for the given snowflake node (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("creating snowflake node: %w", err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new id such as "CB1871234567890123456".
func (g *IDGenerator) Next() string {
	return IDPrefix + g.node.Generate().String()
}
