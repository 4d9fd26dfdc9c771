package evchat

import (
	"github.com/randalmurphal/turngraph/pkg/evchat/sqldb"
	"github.com/randalmurphal/turngraph/pkg/turngraph"
)

// Scratch fields of the EV chat state, on top of question, messages and
// next_node. All are overwritten by whichever node sets them.
const (
	// KeySchemaInfo holds the introspected database schema.
	KeySchemaInfo = "schema_info"
	// KeyGeneratedQuery holds the SQL produced by the model. After
	// execute_query it holds the statement that actually ran.
	KeyGeneratedQuery = "generated_query"
	// KeyQueryResult holds the rows returned by the query.
	KeyQueryResult = "query_result"
)

// Node names.
const (
	NodeGeneralAnswer  = "general_answer"
	NodeClassifyIntent = "classify_intent"
	NodeGenerateCode   = "generate_code"
	NodeExplainCode    = "explain_code"
	NodeSchemaInfo     = "schema_info"
	NodeGenerateQuery  = "generate_query"
	NodeExecuteQuery   = "execute_query"
	NodeAnswerQuery    = "answer_query"
)

// Router labels.
const (
	// LabelYes and LabelNo answer "is this about EV performance data?".
	LabelYes turngraph.Label = "yes"
	LabelNo  turngraph.Label = "no"

	// Intent labels written to next_node by classify_intent.
	LabelCode     turngraph.Label = "code"
	LabelDatabase turngraph.Label = "database"
	LabelGeneral  turngraph.Label = "general"
)

var (
	domainLabels = []string{string(LabelYes), string(LabelNo)}
	intentLabels = []string{string(LabelCode), string(LabelDatabase), string(LabelGeneral)}
)

// NewSchema returns the state schema of the EV chat graph.
func NewSchema() *turngraph.Schema {
	return turngraph.MustSchema(
		turngraph.Overwrite[sqldb.Schema](KeySchemaInfo),
		turngraph.Overwrite[string](KeyGeneratedQuery),
		turngraph.Overwrite[[]sqldb.Row](KeyQueryResult),
	)
}
