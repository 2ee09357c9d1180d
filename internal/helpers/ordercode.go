package helpers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const OrderCodePrefix = "DH"

var orderCodePattern = regexp.MustCompile(OrderCodePrefix + `[A-Za-z0-9]+`)

// OrderCoder issues time-sortable booking references such as DH1A2B3C4D5E.
type OrderCoder struct {
	node *snowflake.Node
}

func NewOrderCoder(nodeID int64) (*OrderCoder, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &OrderCoder{node: node}, nil
}

func (oc *OrderCoder) Next() string {
	return OrderCodePrefix + strings.ToUpper(oc.node.Generate().Base36())
}

// ExtractOrderCode returns the first order reference found, trying each
// candidate text in order.
func ExtractOrderCode(candidates ...string) string {
	for _, text := range candidates {
		if m := orderCodePattern.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
