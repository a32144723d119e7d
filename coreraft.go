// Package coreraft holds the domain types shared by the replicated-log engine:
// member and cluster identifiers, log entries, replicated content and the
// abstract log contract the consensus core is built against.
//
// The consensus state machine lives in the raft package; everything that
// moves bytes (durable storage, transport, the database engine consuming
// committed entries) is an external collaborator reached through the
// interfaces declared here and in the raft, apply and catchup packages.
package coreraft
