package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Talks to a gateway started with `stowage serve`.
const baseURL = "http://localhost:8080/api/v1"

func main() {
	fmt.Println("=== Push Example ===")
	if err := pushObject("examples/hello.txt", []byte("hello from the gateway example")); err != nil {
		fmt.Printf("Push error: %v\n", err)
		return
	}
	fmt.Println("Push successful!")

	fmt.Println("\n=== Pull Example ===")
	if err := pullObject("examples/hello.txt", "downloaded_hello.txt"); err != nil {
		fmt.Printf("Pull error: %v\n", err)
		return
	}
	fmt.Println("Pull successful!")

	fmt.Println("\n=== Uploads ===")
	if err := printUploads(); err != nil {
		fmt.Printf("List error: %v\n", err)
	}
}

func pushObject(key string, content []byte) error {
	req, err := http.NewRequest(http.MethodPut, baseURL+"/objects/"+key, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("push failed with status %d: %s", resp.StatusCode, body)
	}
	fmt.Printf("Response: %s\n", body)
	return nil
}

func pullObject(key, outputPath string) error {
	resp, err := http.Get(baseURL + "/objects/" + key)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, body)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	fmt.Printf("Downloaded %d bytes to %s\n", n, outputPath)
	return nil
}

func printUploads() error {
	resp, err := http.Get(baseURL + "/uploads?limit=5")
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	fmt.Println(string(body))
	return nil
}
