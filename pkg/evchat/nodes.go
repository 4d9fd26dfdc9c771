package evchat

import (
	"context"
	"fmt"

	"github.com/randalmurphal/turngraph/pkg/evchat/sqldb"
	"github.com/randalmurphal/turngraph/pkg/turngraph"
	"github.com/randalmurphal/turngraph/pkg/turngraph/llm"
)

// Querier is the analytics database as the query nodes see it.
// *sqldb.DB implements it.
type Querier interface {
	Execute(ctx context.Context, query string) ([]sqldb.Row, error)
	DescribeSchema(ctx context.Context) (sqldb.Schema, error)
}

// nodes holds the handlers of one compiled graph. The model is fixed at
// construction so concurrent turns on different models never share it.
type nodes struct {
	answer   llm.Invoker
	classify llm.Invoker
	db       Querier
}

func (n *nodes) answerer(ctx turngraph.Context) llm.Invoker {
	inv := n.answer
	inv.Logger = ctx.Logger()
	return inv
}

func (n *nodes) classifier(ctx turngraph.Context) llm.Invoker {
	inv := n.classify
	inv.Logger = ctx.Logger()
	return inv
}

func reply(ctx turngraph.Context, text string) turngraph.Update {
	return turngraph.Update{
		turngraph.KeyMessages: turngraph.AssistantMessage(ctx.NodeID(), text),
	}
}

// routeDomain asks the classifier whether the question concerns EV data.
func (n *nodes) routeDomain(ctx turngraph.Context, s turngraph.State) (turngraph.Label, error) {
	label, err := n.classifier(ctx).Classify(ctx, domainPrompt, map[string]any{
		varQuestion: s.Question(),
	}, domainLabels)
	if err != nil {
		return "", err
	}
	ctx.Logger().Debug("domain classified", "label", label)
	return turngraph.Label(label), nil
}

// routeIntent dispatches on the label classify_intent stored.
func routeIntent(_ turngraph.Context, s turngraph.State) (turngraph.Label, error) {
	return turngraph.Label(s.NextNode()), nil
}

func (n *nodes) classifyIntent(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	label, err := n.classifier(ctx).Classify(ctx, intentPrompt, map[string]any{
		varQuestion: s.Question(),
	}, intentLabels)
	if err != nil {
		return nil, err
	}
	return turngraph.Update{turngraph.KeyNextNode: label}, nil
}

func (n *nodes) generalAnswer(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	text, err := n.answerer(ctx).Invoke(ctx, generalAnswerPrompt, map[string]any{
		varQuestion: s.Question(),
	})
	if err != nil {
		return nil, err
	}
	return reply(ctx, text), nil
}

func (n *nodes) generateCode(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	schema, err := n.db.DescribeSchema(ctx)
	if err != nil {
		return nil, err
	}
	code, err := n.answerer(ctx).Invoke(ctx, generateCodePrompt, map[string]any{
		varQuestion: s.Question(),
		varDBInfo:   schema,
	})
	if err != nil {
		return nil, err
	}
	return turngraph.Update{
		KeySchemaInfo:     schema,
		KeyGeneratedQuery: code,
	}, nil
}

func (n *nodes) explainCode(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	schema, err := fromState[sqldb.Schema](s, KeySchemaInfo)
	if err != nil {
		return nil, err
	}
	code, err := fromState[string](s, KeyGeneratedQuery)
	if err != nil {
		return nil, err
	}
	text, err := n.answerer(ctx).Invoke(ctx, explainCodePrompt, map[string]any{
		varQuestion: s.Question(),
		varDBInfo:   schema,
		varDBQuery:  code,
	})
	if err != nil {
		return nil, err
	}
	return reply(ctx, text), nil
}

func (n *nodes) schemaInfo(ctx turngraph.Context, _ turngraph.State) (turngraph.Update, error) {
	schema, err := n.db.DescribeSchema(ctx)
	if err != nil {
		return nil, err
	}
	ctx.Logger().Debug("schema described", "relations", len(schema))
	return turngraph.Update{KeySchemaInfo: schema}, nil
}

func (n *nodes) generateQuery(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	schema, err := fromState[sqldb.Schema](s, KeySchemaInfo)
	if err != nil {
		return nil, err
	}
	query, err := n.answerer(ctx).Invoke(ctx, generateQueryPrompt, map[string]any{
		varQuestion: s.Question(),
		varDBInfo:   schema,
	})
	if err != nil {
		return nil, err
	}
	return turngraph.Update{KeyGeneratedQuery: query}, nil
}

// executeQuery runs the generated SQL. A failing query fails the turn;
// no placeholder rows are substituted.
func (n *nodes) executeQuery(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	query, err := fromState[string](s, KeyGeneratedQuery)
	if err != nil {
		return nil, err
	}
	query = sqldb.StripFences(query)

	rows, err := n.db.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	ctx.Logger().Info("query executed", "rows", len(rows))
	return turngraph.Update{
		KeyGeneratedQuery: query,
		KeyQueryResult:    rows,
	}, nil
}

func (n *nodes) answerQuery(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
	rows, err := fromState[[]sqldb.Row](s, KeyQueryResult)
	if err != nil {
		return nil, err
	}
	text, err := n.answerer(ctx).Invoke(ctx, answerQueryPrompt, map[string]any{
		varQuestion: s.Question(),
		varDBResult: rows,
	})
	if err != nil {
		return nil, err
	}
	return reply(ctx, text), nil
}

func fromState[T any](s turngraph.State, key string) (T, error) {
	v, ok := turngraph.Get[T](s, key)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrMissingState, key)
	}
	return v, nil
}
