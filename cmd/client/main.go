// Command client is a line-oriented terminal client for the ChatRelay server.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/relayhub/chatrelay/internal/relay"
)

func main() {
	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "ws://localhost:8080/ws"
	}

	conn, resp, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("Connected to server")

	stdin := bufio.NewReader(os.Stdin)
	if err := joinLoop(conn, stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Joined successfully!")

	go printEvents(conn)

	showMenu()
	commandLoop(conn, stdin)
}

// joinLoop prompts for a name until the server accepts it. Before the join
// succeeds the server sends nothing but joined, name_taken, or error events,
// so reading synchronously here is safe.
func joinLoop(conn *websocket.Conn, stdin *bufio.Reader) error {
	for {
		fmt.Print("Enter your unique name: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read name: %w", err)
		}
		name := strings.TrimSpace(line)

		if err := send(conn, relay.Inbound{Type: relay.InJoin, Name: name}); err != nil {
			return fmt.Errorf("send join: %w", err)
		}

		for {
			ev, err := readEvent(conn)
			if err != nil {
				return fmt.Errorf("read join reply: %w", err)
			}
			if ev.Type == relay.OutJoined {
				return nil
			}
			if ev.Type == relay.OutNameTaken {
				fmt.Println("Name already taken. Please choose another name.")
				break
			}
			printEvent(ev)
		}
	}
}

func showMenu() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  list_clients")
	fmt.Println("  broadcast <message>")
	fmt.Println("  private <name> <message>")
	fmt.Println("  read_private <name>")
	fmt.Println("  create_group <group_name>")
	fmt.Println("  join_group <group_name>")
	fmt.Println("  leave_group <group_name>")
	fmt.Println("  list_groups")
	fmt.Println("  group_message <group_name> <message>")
	fmt.Println("  read_group <group_name>")
	fmt.Println("  quit")
}

func commandLoop(conn *websocket.Conn, stdin *bufio.Reader) {
	for {
		line, err := stdin.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		var ev relay.Inbound
		switch strings.ToLower(parts[0]) {
		case "list_clients":
			ev = relay.Inbound{Type: relay.InListClients}
		case "broadcast":
			if len(parts) < 2 {
				fmt.Println("Usage: broadcast <message>")
				continue
			}
			ev = relay.Inbound{Type: relay.InBroadcast, Message: strings.Join(parts[1:], " ")}
		case "private":
			if len(parts) < 3 {
				fmt.Println("Usage: private <name> <message>")
				continue
			}
			ev = relay.Inbound{Type: relay.InPrivateMessage, To: parts[1], Message: strings.Join(parts[2:], " ")}
		case "read_private":
			if len(parts) < 2 {
				fmt.Println("Usage: read_private <name>")
				continue
			}
			ev = relay.Inbound{Type: relay.InReadPrivateMessage, Sender: parts[1]}
		case "create_group":
			if len(parts) < 2 {
				fmt.Println("Usage: create_group <group_name>")
				continue
			}
			ev = relay.Inbound{Type: relay.InCreateGroup, GroupName: parts[1]}
		case "join_group":
			if len(parts) < 2 {
				fmt.Println("Usage: join_group <group_name>")
				continue
			}
			ev = relay.Inbound{Type: relay.InJoinGroup, GroupName: parts[1]}
		case "leave_group":
			if len(parts) < 2 {
				fmt.Println("Usage: leave_group <group_name>")
				continue
			}
			ev = relay.Inbound{Type: relay.InLeaveGroup, GroupName: parts[1]}
		case "list_groups":
			ev = relay.Inbound{Type: relay.InListGroups}
		case "group_message":
			if len(parts) < 3 {
				fmt.Println("Usage: group_message <group_name> <message>")
				continue
			}
			ev = relay.Inbound{Type: relay.InGroupMessage, GroupName: parts[1], Message: strings.Join(parts[2:], " ")}
		case "read_group":
			if len(parts) < 2 {
				fmt.Println("Usage: read_group <group_name>")
				continue
			}
			ev = relay.Inbound{Type: relay.InReadGroupMessage, GroupName: parts[1]}
		case "quit":
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		default:
			fmt.Println("Unknown command")
			continue
		}

		if err := send(conn, ev); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			return
		}
	}
}

func printEvents(conn *websocket.Conn) {
	for {
		ev, err := readEvent(conn)
		if err != nil {
			fmt.Println("Disconnected from server")
			os.Exit(0)
		}
		printEvent(ev)
	}
}

func printEvent(ev relay.Outbound) {
	switch ev.Type {
	case relay.OutUserJoined:
		fmt.Printf("%s joined the chat\n", ev.Name)
	case relay.OutUserLeft:
		fmt.Printf("%s left the chat\n", ev.Name)
	case relay.OutClientList:
		fmt.Printf("Connected clients: %s\n", strings.Join(ev.Clients, ", "))
	case relay.OutGroupList:
		fmt.Println("Groups:")
		for _, g := range ev.Groups {
			fmt.Printf("- %s: %s\n", g.Name, strings.Join(g.Members, ", "))
		}
	case relay.OutBroadcastMessage:
		fmt.Printf("%s: %s\n", ev.From, ev.Message)
	case relay.OutPrivateMessage:
		fmt.Printf("Private from %s: %s\n", ev.From, ev.Message)
	case relay.OutPrivateMessageSent:
		fmt.Printf("Private to %s: %s\n", ev.To, ev.Message)
	case relay.OutPrivateMessageRead:
		fmt.Printf("%s read your private messages\n", ev.Reader)
	case relay.OutGroupCreated:
		fmt.Printf("Group '%s' created\n", ev.Name)
	case relay.OutJoinedGroup:
		fmt.Printf("Joined group '%s'\n", ev.Name)
	case relay.OutLeftGroup:
		fmt.Printf("Left group '%s'\n", ev.Name)
	case relay.OutGroupMessage:
		fmt.Printf("Group %s - %s: %s\n", ev.GroupName, ev.From, ev.Message)
	case relay.OutGroupMessageSent:
		fmt.Printf("Group %s - You: %s\n", ev.GroupName, ev.Message)
	case relay.OutGroupMessageRead:
		fmt.Printf("Group %s: %s read your messages\n", ev.GroupName, ev.Reader)
	case relay.OutError:
		fmt.Printf("Error: %s\n", ev.Error)
	}
}

func send(conn *websocket.Conn, ev relay.Inbound) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func readEvent(conn *websocket.Conn) (relay.Outbound, error) {
	var ev relay.Outbound
	_, data, err := conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}
