// mergectl - консольный клиент сервера слияния: отправляет запрос на анализ
// или слияние двух датасетов и опрашивает статус задачи до завершения.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type TaskStatusResponse struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func main() {
	var (
		serverAddr    string
		mode          string
		masterDB      string
		masterDataset string
		slaveDB       string
		slaveDataset  string
		targetDB      string
		alias         string
		sourceType    string
		chatsFlag     string
	)
	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "Server address")
	flag.StringVar(&mode, "mode", "analyze", "datasets, analyze or merge")
	flag.StringVar(&masterDB, "master-db", "", "Path to the master sqlite database")
	flag.StringVar(&masterDataset, "master-dataset", "", "Master dataset UUID")
	flag.StringVar(&slaveDB, "slave-db", "", "Path to the slave sqlite database")
	flag.StringVar(&slaveDataset, "slave-dataset", "", "Slave dataset UUID")
	flag.StringVar(&targetDB, "target-db", "", "Path to the target sqlite database (merge only)")
	flag.StringVar(&alias, "alias", "merged", "Alias of the new dataset (merge only)")
	flag.StringVar(&sourceType, "source-type", "merged", "Source type tag of the new dataset (merge only)")
	flag.StringVar(&chatsFlag, "chats", "", "Comma-separated chat pairs, each action:masterID:slaveID (e.g. combine:1:1,keep:2:0)")
	flag.Parse()

	if mode == "datasets" {
		if masterDB == "" {
			log.Fatal("Для режима datasets требуется -master-db")
		}
		printDatasets(serverAddr, masterDB)
		return
	}

	if masterDB == "" || masterDataset == "" || slaveDB == "" || slaveDataset == "" {
		log.Fatal("Требуются -master-db, -master-dataset, -slave-db и -slave-dataset")
	}
	if mode == "merge" && targetDB == "" {
		log.Fatal("Для режима merge требуется -target-db")
	}

	chats, err := parseChatPairs(chatsFlag)
	if err != nil {
		log.Fatalf("Не удалось разобрать -chats: %v", err)
	}

	payload := map[string]interface{}{
		"master_db":      masterDB,
		"master_dataset": masterDataset,
		"slave_db":       slaveDB,
		"slave_dataset":  slaveDataset,
		"chats":          chats,
	}
	endpoint := "/api/v1/analyze"
	if mode == "merge" {
		payload["target_db"] = targetDB
		payload["alias"] = alias
		payload["source_type"] = sourceType
		endpoint = "/api/v1/merge"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("Не удалось сериализовать запрос: %v", err)
	}

	// Отправка запроса на сервер
	resp, err := http.Post(serverAddr+endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Не удалось отправить запрос: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("Сервер вернул статус: %d", resp.StatusCode)
	}

	// Разбор идентификатора задачи из ответа
	var taskResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&taskResp); err != nil {
		log.Fatalf("Не удалось декодировать ответ: %v", err)
	}
	taskID := taskResp["task_id"]
	if taskID == "" {
		log.Fatal("Идентификатор задачи не найден в ответе")
	}

	fmt.Printf("Задача создана с идентификатором: %s\n", taskID)

	// Опрос о статусе задачи
	for {
		time.Sleep(2 * time.Second)

		resp, err := http.Get(fmt.Sprintf("%s/api/v1/tasks/%s", serverAddr, taskID))
		if err != nil {
			log.Fatalf("Не удалось опросить статус задачи: %v", err)
		}

		var statusResp TaskStatusResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&statusResp)
		resp.Body.Close()
		if decodeErr != nil {
			log.Fatalf("Не удалось декодировать ответ статуса: %v", decodeErr)
		}

		fmt.Printf("Статус задачи: %s\n", statusResp.Status)

		switch statusResp.Status {
		case "completed":
			printResult(serverAddr, taskID)
			return
		case "failed":
			log.Fatalf("Задача провалена: %s", statusResp.ErrorMessage)
		}
	}
}

// parseChatPairs разбирает значение -chats: список элементов
// action:masterID:slaveID через запятую. Для keep значим только masterID,
// для add - только slaveID.
func parseChatPairs(raw string) ([]map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var out []map[string]interface{}
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("ожидалось action:masterID:slaveID, получено %q", item)
		}
		var masterID, slaveID int64
		if _, err := fmt.Sscanf(parts[1], "%d", &masterID); err != nil {
			return nil, fmt.Errorf("некорректный masterID в %q: %w", item, err)
		}
		if _, err := fmt.Sscanf(parts[2], "%d", &slaveID); err != nil {
			return nil, fmt.Errorf("некорректный slaveID в %q: %w", item, err)
		}
		out = append(out, map[string]interface{}{
			"action":         parts[0],
			"master_chat_id": masterID,
			"slave_chat_id":  slaveID,
		})
	}
	return out, nil
}

// printDatasets перечисляет датасеты указанной базы.
func printDatasets(serverAddr, dbPath string) {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/datasets?db=%s", serverAddr, url.QueryEscape(dbPath)))
	if err != nil {
		log.Fatalf("Не удалось запросить список датасетов: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Сервер вернул статус: %d", resp.StatusCode)
	}

	var body struct {
		Datasets []struct {
			UUID       string `json:"uuid"`
			Alias      string `json:"alias"`
			SourceType string `json:"source_type"`
		} `json:"datasets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Fatalf("Не удалось декодировать ответ: %v", err)
	}
	for _, ds := range body.Datasets {
		fmt.Printf("%s\t%s\t%s\n", ds.UUID, ds.Alias, ds.SourceType)
	}
}

// printResult получает и выводит результат завершённой задачи.
func printResult(serverAddr, taskID string) {
	resp, err := http.Get(fmt.Sprintf("%s/api/v1/tasks/%s/result", serverAddr, taskID))
	if err != nil {
		log.Fatalf("Не удалось получить результат: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Сервер вернул статус: %d", resp.StatusCode)
	}

	var pretty bytes.Buffer
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		log.Fatalf("Не удалось декодировать результат: %v", err)
	}
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		log.Fatalf("Не удалось отформатировать результат: %v", err)
	}
	fmt.Println("Результат:")
	if _, err := pretty.WriteTo(os.Stdout); err != nil {
		log.Fatalf("Не удалось вывести результат: %v", err)
	}
	fmt.Println()
}
