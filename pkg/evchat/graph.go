package evchat

import (
	"errors"

	"github.com/randalmurphal/turngraph/pkg/turngraph"
	tgerrors "github.com/randalmurphal/turngraph/pkg/turngraph/errors"
	"github.com/randalmurphal/turngraph/pkg/turngraph/llm"
)

var (
	// ErrMissingDependency indicates Deps lacks the LLM client or database.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrMissingState indicates a node ran before the field it reads was set.
	ErrMissingState = errors.New("missing state field")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Deps are the collaborators injected into node handlers.
type Deps struct {
	// LLM answers questions and writes SQL using the per-request model.
	LLM llm.Client
	// Classifier runs the two routing prompts. Defaults to LLM.
	Classifier llm.Client
	// ClassifierModel is the model for routing prompts. Empty uses the
	// per-request model.
	ClassifierModel string
	// DB is the analytics database.
	DB Querier
	// Retry applies to every LLM call. The zero value makes one attempt.
	Retry tgerrors.RetryConfig
}

func (d Deps) validate() error {
	if d.LLM == nil {
		return errors.Join(ErrMissingDependency, errors.New("llm client is nil"))
	}
	if d.DB == nil {
		return errors.Join(ErrMissingDependency, errors.New("database is nil"))
	}
	return nil
}

// BuildGraph compiles the EV chat graph with model baked into its
// LLM-backed nodes.
//
//	START           --route_domain--> yes: classify_intent, no: general_answer
//	classify_intent --route_intent--> code: generate_code, database: schema_info, general: general_answer
//	generate_code -> explain_code -> END
//	schema_info -> generate_query -> execute_query -> answer_query -> END
//	general_answer -> END
func BuildGraph(deps Deps, model string) (*turngraph.CompiledGraph, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := checkPrompts(); err != nil {
		return nil, err
	}

	classifier := deps.Classifier
	if classifier == nil {
		classifier = deps.LLM
	}
	classifierModel := deps.ClassifierModel
	if classifierModel == "" {
		classifierModel = model
	}

	n := &nodes{
		answer:   llm.Invoker{Client: deps.LLM, Model: model, Retry: deps.Retry},
		classify: llm.Invoker{Client: classifier, Model: classifierModel, Retry: deps.Retry},
		db:       deps.DB,
	}

	return turngraph.NewGraph(NewSchema()).
		AddNode(NodeGeneralAnswer, n.generalAnswer).
		AddNode(NodeClassifyIntent, n.classifyIntent).
		AddNode(NodeGenerateCode, n.generateCode).
		AddNode(NodeExplainCode, n.explainCode).
		AddNode(NodeSchemaInfo, n.schemaInfo).
		AddNode(NodeGenerateQuery, n.generateQuery).
		AddNode(NodeExecuteQuery, n.executeQuery).
		AddNode(NodeAnswerQuery, n.answerQuery).
		AddConditionalEdge(turngraph.START, n.routeDomain, map[turngraph.Label]string{
			LabelYes: NodeClassifyIntent,
			LabelNo:  NodeGeneralAnswer,
		}).
		AddConditionalEdge(NodeClassifyIntent, routeIntent, map[turngraph.Label]string{
			LabelCode:     NodeGenerateCode,
			LabelDatabase: NodeSchemaInfo,
			LabelGeneral:  NodeGeneralAnswer,
		}).
		AddEdge(NodeGenerateCode, NodeExplainCode).
		AddEdge(NodeSchemaInfo, NodeGenerateQuery).
		AddEdge(NodeGenerateQuery, NodeExecuteQuery).
		AddEdge(NodeExecuteQuery, NodeAnswerQuery).
		AddEdge(NodeGeneralAnswer, turngraph.END).
		AddEdge(NodeExplainCode, turngraph.END).
		AddEdge(NodeAnswerQuery, turngraph.END).
		Compile()
}
