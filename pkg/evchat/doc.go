// Package evchat is the EV performance chat workflow built on turngraph.
//
// A question first goes through a yes/no relevance classifier. Small talk
// is answered directly by general_answer. Domain questions are classified
// again into code, database or general: code questions get a generated SQL
// statement plus an explanation, database questions get a generated query
// that is executed read-only against the analytics database and
// summarized.
//
// The model is chosen per request and baked into the handlers of a graph
// compiled for that model; Service caches one graph per model.
//
//	db, _ := sqldb.Open("pgx", dsn, sqldb.DefaultOptions())
//	svc, _ := evchat.NewService(evchat.Deps{
//	    LLM: llm.NewOpenAIClient(llm.WithBaseURL("http://localhost:11434/v1/")),
//	    DB:  db,
//	})
//	result, err := svc.Ask(ctx, evchat.AskRequest{Question: "SOH가 가장 낮은 차량은?"})
//	if err != nil {
//	    return evchat.FailureMessage(err)
//	}
//	return result.Answer
package evchat
