// Demo program to showcase the history viewer with a realistic Jenkins
// conversation. Records go through the ingest agent into an in-memory store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"jenkins-memory-agent/src/broker"
	"jenkins-memory-agent/src/codec"
	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/ingest"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/records"
	"jenkins-memory-agent/src/store"
	"jenkins-memory-agent/src/tui"
)

const demoJob = "payments-service"

func main() {
	ctx := context.Background()
	log := logger.NewSilentLogger()

	memory := store.NewMemoryStore(store.Options{Logger: log})
	brk := broker.NewInMemoryBroker()
	defer brk.Close()

	agent := ingest.NewAgent(brk, memory, records.NewNormalizer(codec.StdJSON, log), log, nil)

	fmt.Println("Generating sample Jenkins records...")
	samples, err := sampleRecords()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building samples: %v\n", err)
		os.Exit(1)
	}
	for _, data := range samples {
		if err := agent.Process(ctx, data); err != nil {
			fmt.Fprintf(os.Stderr, "Error ingesting sample: %v\n", err)
			os.Exit(1)
		}
	}

	// The AI caller's answer lands in the same conversation
	err = memory.Add(ctx, demoJob, []contracts.Message{
		contracts.AssistantMessage(`Root cause: the integration stage ran out of heap while loading
datasets/huge_import.csv. The second build log shows the same OOM after
commit 9f1c2e7 raised the batch size from 500 to 5000.

Suggested fix: revert the batch size or raise -Xmx for the test JVM.`, contracts.WithBuildNumber(42)),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error adding analysis: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded %d records for %s.\n", len(samples)+1, demoJob)
	fmt.Println("Launching viewer...")
	time.Sleep(500 * time.Millisecond) // Brief pause for effect

	load := func(ctx context.Context) ([]contracts.Message, error) {
		return memory.Get(ctx, demoJob, 200)
	}
	if err := tui.Run(demoJob, load); err != nil {
		fmt.Fprintf(os.Stderr, "Error running viewer: %v\n", err)
		os.Exit(1)
	}
}

func sampleRecords() ([][]byte, error) {
	// The second console log arrives compressed, as large logs do
	compressed, err := codec.Encode(`[Pipeline] stage (Integration Tests)
[INFO] Running test: com.acme.payments.LargeBatchTest
[INFO] Loading dataset: datasets/huge_import.csv (500MB)
[WARN] GC overhead limit exceeded imminent
java.lang.OutOfMemoryError: Java heap space
	at com.acme.payments.DataHandler.process(DataHandler.java:142)
	at com.acme.payments.BatchRunner.run(BatchRunner.java:55)
[Pipeline] }
ERROR: script returned exit code 1
Finished: FAILURE`)
	if err != nil {
		return nil, err
	}

	return [][]byte{
		[]byte(`{"type":"build_log_data","job_name":"payments-service","build_number":41,"log":"[Pipeline] stage (Build)\n> gradle assemble\nBUILD SUCCESSFUL in 48s\nFinished: SUCCESS"}`),
		[]byte(`{"type":"code_changes","job_name":"payments-service","build_number":42,"message":"2 commits since #41","commits":[{"commit_id":"9f1c2e7","author":"dev-a","message":"Raise import batch size to 5000","affected_files":["src/main/java/com/acme/payments/BatchRunner.java"]},{"commit_id":"1b77a0d","author":"dev-b","message":"Bump postgres driver","affected_files":["build.gradle"]}],"culprits":["dev-a","dev-b"]}`),
		[]byte(`{"type":"build_log_data","job_name":"payments-service","build_number":42,"log":"[Pipeline] stage (Build)\n> gradle assemble\nBUILD SUCCESSFUL in 51s"}`),
		[]byte(fmt.Sprintf(`{"type":"build_log_data","job_name":"payments-service","build_number":42,"log":%q,"log_compressed":true}`, compressed)),
		[]byte(`{"type":"secret_detection","job_name":"payments-service","build_number":42,"source":"build_log","message":"1 potential secret","secrets":{"aws_access_key":["AKIA****************"]}}`),
		[]byte(`{"type":"sast_scanning","job_name":"payments-service","build_number":42,"repo_url":"https://git.example.com/acme/payments.git","branch":"main","tool":"semgrep","scan_duration_seconds":12.4,"scan_result":"java.lang.security.audit.sqli: 1 finding in PaymentDao.java:88","status":"completed"}`),
		[]byte(`{"type":"additional_info_agent","job_name":"payments-service","build_number":42,"node":"linux-agent-07","os":"Linux","load_average":7.9,"cpu_load":0.93,"memory":{"total":"16GB","free":"412MB"},"status":"online"}`),
	}, nil
}
