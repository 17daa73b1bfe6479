// Package filter holds the scoring strategies used by every stage of the
// track finder.
//
// A Filter returns a weight for an object; NaN rejects it. Stages select
// their filter by name through a Factory, so a misspelled name is caught when
// the pipeline is built rather than per event. Besides the stage specific
// filters each factory offers:
//
//	all        accept everything with the stage's default weight
//	none       reject everything
//	truth      accept simulated signal only
//	mva        logistic classifier over the stage's variable set
//	recording  wrap another filter and store its inputs for training
package filter
