package graph

import "go.opentelemetry.io/otel/attribute"

func attrMode(mode string) attribute.KeyValue {
	return attribute.String("cqlite.txn.mode", mode)
}

func attrOutcome(outcome string) attribute.KeyValue {
	return attribute.String("cqlite.query.outcome", outcome)
}
